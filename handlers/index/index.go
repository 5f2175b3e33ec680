package index

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/web"
)

func (s *Handler) index(c *gin.Context) {
	st, notices, err := s.cs.TakeNotices(c.Request.Context(), s.consoleID(c))
	if err != nil {
		log.WithError(err).Error("failed to load console state")
		s.tb.Build("index").HTML(http.StatusInternalServerError, web.NewContext(c).WithErr(err).WithData(&console.State{}))
		return
	}
	s.tb.Build("index").HTML(http.StatusOK, web.NewContext(c).WithData(st).WithNotices(notices))
}

func (s *Handler) info(c *gin.Context) {
	ctx := c.Request.Context()
	id := s.consoleID(c)
	if res, ok := c.GetPostForm("resolution"); ok {
		if _, err := s.cs.SelectResolution(ctx, id, res); err != nil {
			log.WithError(err).Error("failed to store resolution")
		}
	}
	url := c.PostForm("url")
	_, err := s.cs.FetchMetadata(ctx, id, url)
	if err != nil && !console.Notified(err) {
		log.WithError(err).Error("failed to update console state")
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if err != nil {
		log.WithError(err).WithField("url", url).Warn("failed to fetch video info")
	}
	web.RedirectToIndex(c)
}
