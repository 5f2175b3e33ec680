package console

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/download-console/services/media"
)

const (
	releaseTimeout  = 10 * time.Second
	maxNotices      = 10
	defaultLeaseTTL = 30 * time.Second
)

var errLeaseLost = errors.New("download lease lost")

type MediaApi interface {
	VideoInfo(ctx context.Context, url string) (*media.VideoInfo, error)
	Download(ctx context.Context, url string, resolution string) (*media.Download, error)
}

// Console runs the fetch and download operations against the media api and
// reflects their outcome in the state kept by Store.
type Console struct {
	api      MediaApi
	store    Store
	leaseTTL time.Duration
	now      func() time.Time
}

func New(api MediaApi, store Store) *Console {
	return &Console{
		api:      api,
		store:    store,
		leaseTTL: defaultLeaseTTL,
		now:      time.Now,
	}
}

// WithLeaseTTL sets how long a download holds InProgress without renewing it.
func (s *Console) WithLeaseTTL(d time.Duration) *Console {
	s.leaseTTL = d
	return s
}

func (s *Console) State(ctx context.Context, id string) (*State, error) {
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st.expireLease(s.now())
	return st, nil
}

// update is Store.Update with lapsed download leases cleared first.
func (s *Console) update(ctx context.Context, id string, fn func(st *State) error) (*State, error) {
	return s.store.Update(ctx, id, func(st *State) error {
		if st.expireLease(s.now()) {
			log.WithField("console", id).Warn("download lease expired")
		}
		return fn(st)
	})
}

// SetQuery records the raw url input.
func (s *Console) SetQuery(ctx context.Context, id string, url string) (*State, error) {
	return s.update(ctx, id, func(st *State) error {
		st.Query = url
		return nil
	})
}

func (s *Console) SelectResolution(ctx context.Context, id string, resolution string) (*State, error) {
	return s.update(ctx, id, func(st *State) error {
		st.Resolution = resolution
		return nil
	})
}

// TakeNotices returns pending notices and clears them.
func (s *Console) TakeNotices(ctx context.Context, id string) (*State, []string, error) {
	var notices []string
	st, err := s.update(ctx, id, func(st *State) error {
		notices = st.Notices
		st.Notices = nil
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return st, notices, nil
}

func (s *Console) notify(ctx context.Context, id string, err error) {
	n := Notice(err)
	_, uerr := s.update(ctx, id, func(st *State) error {
		st.Notices = appendNotice(st.Notices, n)
		return nil
	})
	if uerr != nil {
		log.WithError(uerr).WithField("console", id).Error("failed to store notice")
	}
}

func appendNotice(notices []string, n string) []string {
	notices = append(notices, n)
	if len(notices) > maxNotices {
		notices = notices[len(notices)-maxNotices:]
	}
	return notices
}

// FetchMetadata resolves url into MediaInfo. On success the stored info is
// replaced as a whole; on any failure it is left as it was and a notice is
// queued. Concurrent fetches are not ordered: the last one to finish wins.
func (s *Console) FetchMetadata(ctx context.Context, id string, url string) (*State, error) {
	if _, err := s.SetQuery(ctx, id, url); err != nil {
		return nil, err
	}
	info, err := s.fetch(ctx, url)
	if err != nil {
		err = fetchFailed(err)
		s.notify(context.WithoutCancel(ctx), id, err)
		return nil, err
	}
	return s.update(ctx, id, func(st *State) error {
		st.Info = info
		return nil
	})
}

func (s *Console) fetch(ctx context.Context, url string) (*MediaInfo, error) {
	vi, err := s.api.VideoInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewMediaInfo(vi)
}

// DownloadMedia downloads url at resolution and hands the stream to sv as
// "<title>.mp4". InProgress is raised for the duration of the call and is
// cleared on every exit path; a second call while it is raised fails with
// ErrDownloadInProgress.
func (s *Console) DownloadMedia(ctx context.Context, id string, url string, resolution string, sv Saver) (err error) {
	owner := uuid.NewString()
	st, err := s.update(ctx, id, func(st *State) error {
		if st.Info == nil {
			return ErrNoMediaInfo
		}
		if st.InProgress {
			return ErrDownloadInProgress
		}
		st.Query = url
		st.Resolution = resolution
		st.acquire(owner, s.now().Add(s.leaseTTL))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoMediaInfo) || errors.Is(err, ErrDownloadInProgress) {
			s.notify(context.WithoutCancel(ctx), id, err)
		}
		return err
	}
	hctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		s.renew(hctx, id, owner)
	}()
	defer func() {
		stop()
		<-renewed
		s.release(ctx, id, owner, err)
	}()
	f := &File{
		Name:        st.Info.Filename(),
		ContentType: FileContentType,
	}
	d, err := s.api.Download(ctx, url, resolution)
	if err != nil {
		return downloadFailed(err)
	}
	defer func() {
		_ = d.Body.Close()
	}()
	f.Size = d.ContentLength
	f.Body = d.Body
	if err = sv.Save(ctx, f); err != nil {
		return downloadFailed(err)
	}
	return nil
}

// renew extends the download lease until ctx is done or the lease is taken
// over.
func (s *Console) renew(ctx context.Context, id string, owner string) {
	t := time.NewTicker(s.leaseTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		_, err := s.update(ctx, id, func(st *State) error {
			if !st.InProgress || st.LeaseOwner != owner {
				return errLeaseLost
			}
			st.LeaseUntil = s.now().Add(s.leaseTTL)
			return nil
		})
		if errors.Is(err, errLeaseLost) {
			log.WithField("console", id).Warn("download lease lost before the download ended")
			return
		}
		if err != nil && ctx.Err() == nil {
			log.WithError(err).WithField("console", id).Error("failed to renew download lease")
		}
	}
}

// release clears InProgress even when the request context is already
// cancelled. A flag raised by another download is left alone.
func (s *Console) release(ctx context.Context, id string, owner string, opErr error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_, err := s.update(rctx, id, func(st *State) error {
		if st.LeaseOwner == owner {
			st.releaseLease()
		}
		if opErr != nil {
			st.Notices = appendNotice(st.Notices, Notice(opErr))
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("console", id).Error("failed to clear download flag")
	}
}
