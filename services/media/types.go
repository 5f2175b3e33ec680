package media

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// VideoInfo is the payload of the video_info endpoint.
type VideoInfo struct {
	Title        string   `json:"title"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Resolutions  []string `json:"resolutions"`
}

// Download is an open binary stream returned by the download endpoint.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

type Message struct {
	Message string `json:"message"`
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("media api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("media api returned status %d: %s", e.StatusCode, e.Detail)
}

const maxDetailSize = 4 << 10

func newStatusError(req *http.Request, resp *http.Response) *StatusError {
	e := &StatusError{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
	}
	var body struct {
		Detail any `json:"detail"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailSize))
	if err != nil || len(data) == 0 {
		return e
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == nil {
		return e
	}
	switch d := body.Detail.(type) {
	case string:
		e.Detail = d
	default:
		e.Detail = fmt.Sprintf("%v", d)
	}
	return e
}
