package index

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/download-console/services/common"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/web"
)

// responseSaver saves a download by streaming it to the browser as an
// attachment.
type responseSaver struct {
	c       *gin.Context
	started bool
}

func (s *responseSaver) Save(_ context.Context, f *console.File) error {
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Disposition", common.AttachmentDisposition(f.Name))
	h.Set("Cache-Control", "no-store")
	if f.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	s.c.Status(http.StatusOK)
	n, err := io.Copy(s.c.Writer, f.Body)
	if err != nil {
		return errors.Wrap(err, "failed to stream file")
	}
	if f.Size >= 0 && n != f.Size {
		return errors.Errorf("short download: got %v of %v bytes", n, f.Size)
	}
	return nil
}

func (s *Handler) download(c *gin.Context) {
	url := c.PostForm("url")
	res := c.PostForm("resolution")
	rs := &responseSaver{c: c}
	err := s.cs.DownloadMedia(c.Request.Context(), s.consoleID(c), url, res, rs)
	if err == nil {
		return
	}
	l := log.WithError(err).WithField("url", url).WithField("resolution", res)
	if !console.Notified(err) {
		l.Error("failed to update console state")
		if !rs.started {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
		}
		return
	}
	l.Warn("failed to download video")
	if rs.started {
		// Headers are gone, the browser sees a truncated body.
		c.Abort()
		return
	}
	web.RedirectToIndex(c)
}
