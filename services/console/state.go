package console

import (
	"time"

	"github.com/pkg/errors"
	"github.com/webtor-io/download-console/services/media"
)

const (
	FileExt         = ".mp4"
	FileContentType = "video/mp4"

	SelectLabel      = "Select"
	DownloadLabel    = "Download Video"
	DownloadingLabel = "Downloading..."
)

// MediaInfo is the metadata of one fetched video. It is either absent or
// fully populated and is replaced wholesale on every successful fetch.
type MediaInfo struct {
	Title        string   `json:"title"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Resolutions  []string `json:"resolutions"`
}

func NewMediaInfo(vi *media.VideoInfo) (*MediaInfo, error) {
	if vi == nil {
		return nil, errors.New("empty video info")
	}
	if vi.Title == "" {
		return nil, errors.New("video info missing title")
	}
	if vi.ThumbnailURL == "" {
		return nil, errors.New("video info missing thumbnail_url")
	}
	if len(vi.Resolutions) == 0 {
		return nil, errors.New("video info missing resolutions")
	}
	res := make([]string, len(vi.Resolutions))
	copy(res, vi.Resolutions)
	return &MediaInfo{
		Title:        vi.Title,
		ThumbnailURL: vi.ThumbnailURL,
		Resolutions:  res,
	}, nil
}

// Filename is the name the downloaded file is saved under.
func (s *MediaInfo) Filename() string {
	return s.Title + FileExt
}

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseInfoShown   Phase = "info_shown"
	PhaseDownloading Phase = "downloading"
)

// State is everything one console shows. It is only mutated through
// Store.Update.
//
// InProgress is held under a lease: the download that raised it renews
// LeaseUntil while it runs, so a flag left behind by a dead process lapses.
type State struct {
	Query      string     `json:"query"`
	Info       *MediaInfo `json:"info,omitempty"`
	Resolution string     `json:"resolution"`
	InProgress bool       `json:"in_progress"`
	LeaseOwner string     `json:"lease_owner,omitempty"`
	LeaseUntil time.Time  `json:"lease_until"`
	Notices    []string   `json:"notices,omitempty"`
}

func (s *State) acquire(owner string, until time.Time) {
	s.InProgress = true
	s.LeaseOwner = owner
	s.LeaseUntil = until
}

func (s *State) releaseLease() {
	s.InProgress = false
	s.LeaseOwner = ""
	s.LeaseUntil = time.Time{}
}

// expireLease drops a download flag whose lease was not renewed in time.
func (s *State) expireLease(now time.Time) bool {
	if !s.InProgress || now.Before(s.LeaseUntil) {
		return false
	}
	s.releaseLease()
	return true
}

func (s *State) Phase() Phase {
	if s.Info == nil {
		return PhaseIdle
	}
	if s.InProgress {
		return PhaseDownloading
	}
	return PhaseInfoShown
}

type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Options returns the resolution selector: an empty "Select" entry followed
// by the fetched resolutions in source order. The stored resolution is
// marked selected only if it is still one of them.
func (s *State) Options() []Option {
	if s.Info == nil {
		return nil
	}
	opts := make([]Option, 0, len(s.Info.Resolutions)+1)
	opts = append(opts, Option{Value: "", Label: SelectLabel})
	found := false
	for _, r := range s.Info.Resolutions {
		sel := !found && r == s.Resolution && r != ""
		if sel {
			found = true
		}
		opts = append(opts, Option{Value: r, Label: r, Selected: sel})
	}
	if !found {
		opts[0].Selected = true
	}
	return opts
}

func (s *State) DownloadDisabled() bool {
	return s.InProgress
}

func (s *State) DownloadLabel() string {
	if s.InProgress {
		return DownloadingLabel
	}
	return DownloadLabel
}

func (s *State) Clone() *State {
	c := *s
	if s.Info != nil {
		info := *s.Info
		info.Resolutions = append([]string(nil), s.Info.Resolutions...)
		c.Info = &info
	}
	c.Notices = append([]string(nil), s.Notices...)
	return &c
}
