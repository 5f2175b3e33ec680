package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	mediaApiHostFlag   = "media-api-host"
	mediaApiPortFlag   = "media-api-port"
	mediaApiSecureFlag = "media-api-secure"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   mediaApiHostFlag,
			Usage:  "media api host",
			EnvVar: "MEDIA_API_HOST",
			Value:  "localhost",
		},
		cli.IntFlag{
			Name:   mediaApiPortFlag,
			Usage:  "media api port",
			EnvVar: "MEDIA_API_PORT",
			Value:  8000,
		},
		cli.BoolFlag{
			Name:   mediaApiSecureFlag,
			Usage:  "media api secure (https)",
			EnvVar: "MEDIA_API_SECURE",
		},
	)
}

const (
	videoInfoPath = "/video_info/"
	downloadPath  = "/download/"
	cleanPath     = "/clean/"
)

type Api struct {
	url string
	cl  *http.Client
}

func New(c *cli.Context, cl *http.Client) *Api {
	host := c.String(mediaApiHostFlag)
	port := c.Int(mediaApiPortFlag)
	secure := c.Bool(mediaApiSecureFlag)
	protocol := "http"
	if secure {
		protocol = "https"
	}
	u := fmt.Sprintf("%v://%v:%v", protocol, host, port)
	log.Infof("media api endpoint %v", u)
	return NewApi(u, cl)
}

func NewApi(url string, cl *http.Client) *Api {
	if cl == nil {
		cl = http.DefaultClient
	}
	return &Api{
		url: strings.TrimSuffix(url, "/"),
		cl:  cl,
	}
}

func (s *Api) newRequest(ctx context.Context, path string, params map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.url+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return req, nil
}

func (s *Api) do(req *http.Request) (*http.Response, error) {
	resp, err := s.cl.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		return nil, newStatusError(req, resp)
	}
	return resp, nil
}

func (s *Api) getJSON(ctx context.Context, path string, params map[string]string, v any) error {
	req, err := s.newRequest(ctx, path, params)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// VideoInfo asks the service to resolve url into a title, a thumbnail and
// the list of downloadable resolutions. url is passed through untouched.
func (s *Api) VideoInfo(ctx context.Context, url string) (*VideoInfo, error) {
	var vi VideoInfo
	err := s.getJSON(ctx, videoInfoPath, map[string]string{
		"url": url,
	}, &vi)
	if err != nil {
		return nil, err
	}
	return &vi, nil
}

// Download opens the binary stream of url rendered at resolution.
// The caller must close the returned body.
func (s *Api) Download(ctx context.Context, url string, resolution string) (*Download, error) {
	req, err := s.newRequest(ctx, downloadPath, map[string]string{
		"url":        url,
		"resolution": resolution,
	})
	if err != nil {
		return nil, err
	}
	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	return &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Clean asks the service to purge its temporary files.
func (s *Api) Clean(ctx context.Context) (*Message, error) {
	var m Message
	if err := s.getJSON(ctx, cleanPath, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Ping hits the service root and returns its welcome message.
func (s *Api) Ping(ctx context.Context) (*Message, error) {
	var m Message
	if err := s.getJSON(ctx, "/", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
