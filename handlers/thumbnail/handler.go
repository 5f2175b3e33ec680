package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/download-console/handlers/session"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/lazymap"
)

const (
	thumbnailProxyFlag = "thumbnail-proxy"
	thumbnailWidthFlag = "thumbnail-width"
)

const (
	ThumbnailJPEGQuality = 85
	fetchTimeout         = 30 * time.Second
	maxSourceSize        = 20 << 20
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.BoolFlag{
			Name:   thumbnailProxyFlag,
			Usage:  "serve thumbnails resized through the console instead of linking the source",
			EnvVar: "THUMBNAIL_PROXY",
		},
		cli.IntFlag{
			Name:   thumbnailWidthFlag,
			Usage:  "width of proxied thumbnails",
			Value:  480,
			EnvVar: "THUMBNAIL_WIDTH",
		},
	)
}

type StateGetter interface {
	State(ctx context.Context, id string) (*console.State, error)
}

type Handler struct {
	cl        *http.Client
	sg        StateGetter
	width     int
	consoleID func(c *gin.Context) string
	cache     lazymap.LazyMap[[]byte]
}

func New(cl *http.Client, sg StateGetter, width int) *Handler {
	return &Handler{
		cl:        cl,
		sg:        sg,
		width:     width,
		consoleID: session.GetConsoleID,
		cache: lazymap.New[[]byte](&lazymap.Config{
			Expire:      10 * time.Minute,
			ErrorExpire: 10 * time.Second,
		}),
	}
}

func RegisterHandler(c *cli.Context, r *gin.Engine, cl *http.Client, sg StateGetter) {
	if !c.Bool(thumbnailProxyFlag) {
		return
	}
	New(cl, sg, c.Int(thumbnailWidthFlag)).RegisterHandler(r)
}

func (s *Handler) RegisterHandler(r *gin.Engine) {
	r.GET("/thumbnail", s.thumbnail)
}

func (s *Handler) thumbnail(c *gin.Context) {
	src := c.Query("src")
	st, err := s.sg.State(c.Request.Context(), s.consoleID(c))
	if err != nil {
		log.WithError(err).Error("failed to get console state")
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	// Only the thumbnail of the media currently shown may be proxied.
	if src == "" || st.Info == nil || st.Info.ThumbnailURL != src {
		c.Status(http.StatusNotFound)
		return
	}

	b, err := s.cache.Get(fmt.Sprintf("%v/%v", s.width, src), func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return s.getResizedJPEG(ctx, src)
	})
	if err != nil {
		log.WithError(err).WithField("src", src).Error("failed to get resized thumbnail")
		_ = c.AbortWithError(http.StatusBadGateway, err)
		return
	}

	etag := generateETag(b)

	if match := c.Request.Header.Get("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.Header("Content-Length", strconv.Itoa(len(b)))
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, max-age=600")
	c.Status(http.StatusOK)

	_, _ = c.Writer.Write(b)
}

func generateETag(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf(`"%x"`, sum[:])
}

func (s *Handler) getResizedJPEG(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Errorf("unsupported thumbnail url %v", src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.cl.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch thumbnail")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("thumbnail source returned status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode thumbnail")
	}
	if img.Bounds().Dx() > s.width {
		img = imaging.Resize(img, s.width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: ThumbnailJPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Helper exposes ThumbnailURL to templates.
type Helper struct {
	enabled bool
}

func NewHelper(c *cli.Context) *Helper {
	return &Helper{
		enabled: c.Bool(thumbnailProxyFlag),
	}
}

func NewHelperWithProxy(enabled bool) *Helper {
	return &Helper{enabled: enabled}
}

// ThumbnailURL returns the address the page should load src from.
func (s *Helper) ThumbnailURL(src string) string {
	if !s.enabled || src == "" {
		return src
	}
	return "/thumbnail?src=" + url.QueryEscape(src)
}
