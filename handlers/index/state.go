package index

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/download-console/services/console"
)

type StateResponse struct {
	Query            string             `json:"query"`
	Phase            console.Phase      `json:"phase"`
	Info             *console.MediaInfo `json:"info"`
	Resolution       string             `json:"resolution"`
	Options          []console.Option   `json:"options"`
	InProgress       bool               `json:"in_progress"`
	DownloadDisabled bool               `json:"download_disabled"`
	DownloadLabel    string             `json:"download_label"`
	Notices          []string           `json:"notices"`
}

func NewStateResponse(st *console.State, notices []string) *StateResponse {
	if notices == nil {
		notices = []string{}
	}
	return &StateResponse{
		Query:            st.Query,
		Phase:            st.Phase(),
		Info:             st.Info,
		Resolution:       st.Resolution,
		Options:          st.Options(),
		InProgress:       st.InProgress,
		DownloadDisabled: st.DownloadDisabled(),
		DownloadLabel:    st.DownloadLabel(),
		Notices:          notices,
	}
}

// state is polled by the page while a download streams, since the page
// itself is not re-rendered until the browser navigates again.
func (s *Handler) state(c *gin.Context) {
	st, notices, err := s.cs.TakeNotices(c.Request.Context(), s.consoleID(c))
	if err != nil {
		log.WithError(err).Error("failed to load console state")
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, NewStateResponse(st, notices))
}
