package console

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// File is a downloaded video handed to a Saver.
type File struct {
	Name        string
	ContentType string
	// Size is -1 when the service did not announce it.
	Size int64
	Body io.Reader
}

// Saver is the save action triggered by a successful download.
type Saver interface {
	Save(ctx context.Context, f *File) error
}

type SaverFunc func(ctx context.Context, f *File) error

func (fn SaverFunc) Save(ctx context.Context, f *File) error {
	return fn(ctx, f)
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename makes name safe to use as a single path element.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// FileSaver writes downloads into Dir. Partial files are removed on failure.
type FileSaver struct {
	Dir string
	// Path is set to the written file after a successful Save.
	Path string
}

func (s *FileSaver) Save(_ context.Context, f *File) (err error) {
	if err = os.MkdirAll(s.Dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create dir %v", s.Dir)
	}
	tmp, err := os.CreateTemp(s.Dir, ".download-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	n, err := io.Copy(tmp, f.Body)
	if err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	if f.Size >= 0 && n != f.Size {
		return errors.Errorf("short download: got %v of %v", humanize.Bytes(uint64(n)), humanize.Bytes(uint64(f.Size)))
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}
	p := filepath.Join(s.Dir, SanitizeFilename(f.Name))
	if err = os.Rename(tmp.Name(), p); err != nil {
		return errors.Wrapf(err, "failed to move file to %v", p)
	}
	s.Path = p
	log.WithField("path", p).Infof("saved %v", humanize.Bytes(uint64(n)))
	return nil
}
