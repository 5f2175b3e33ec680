package template

import (
	"bytes"
	"html/template"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/yargevad/filepathx"
)

const defaultDir = "templates"

type Context interface {
	GetGinContext() *gin.Context
}

type view struct {
	pattern string
	layout  string
}

type Manager[C Context] struct {
	re    multitemplate.Renderer
	dir   string
	funcs template.FuncMap
	views []*view
	tpls  map[string]*template.Template
}

func NewManager[C Context](re multitemplate.Renderer) *Manager[C] {
	return &Manager[C]{
		re:    re,
		dir:   defaultDir,
		funcs: template.FuncMap{},
		tpls:  map[string]*template.Template{},
	}
}

// WithDir sets the directory holding layouts/, views/ and partials/.
func (s *Manager[C]) WithDir(dir string) *Manager[C] {
	s.dir = dir
	return s
}

// WithHelper exposes every exported method of h as a template func named
// in lowerCamelCase, e.g. AppName becomes appName.
func (s *Manager[C]) WithHelper(h any) *Manager[C] {
	v := reflect.ValueOf(h)
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		s.funcs[lowerFirst(m.Name)] = v.Method(i).Interface()
	}
	return s
}

// MustRegisterViews registers the views matching pattern; each one is parsed
// once in Init, against the layout set on the returned Builder.
func (s *Manager[C]) MustRegisterViews(pattern string) Builder[C] {
	v := &view{pattern: pattern}
	s.views = append(s.views, v)
	return Builder[C]{
		m: s,
		v: v,
	}
}

// Init parses every registered view against its layout and hands the result
// to the renderer. It must be called after all handlers are registered.
func (s *Manager[C]) Init() error {
	partials, err := filepathx.Glob(filepath.Join(s.dir, "partials", "**", "*.html"))
	if err != nil {
		return errors.Wrap(err, "failed to glob partials")
	}
	added := map[string]bool{}
	for _, v := range s.views {
		files, err := filepathx.Glob(filepath.Join(s.dir, "views", v.pattern+".html"))
		if err != nil {
			return errors.Wrapf(err, "failed to glob views %v", v.pattern)
		}
		if len(files) == 0 {
			return errors.Errorf("no views found for pattern %v", v.pattern)
		}
		for _, f := range files {
			name, err := s.viewName(f)
			if err != nil {
				return err
			}
			if added[key(name, v.layout)] {
				continue
			}
			if err := s.add(name, v.layout, f, partials); err != nil {
				return err
			}
			added[key(name, v.layout)] = true
		}
	}
	return nil
}

func (s *Manager[C]) viewName(f string) (string, error) {
	rel, err := filepath.Rel(filepath.Join(s.dir, "views"), f)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve view %v", f)
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ".html"), nil
}

func (s *Manager[C]) add(name string, layout string, file string, partials []string) error {
	var files []string
	if layout != "" {
		files = append(files, filepath.Join(s.dir, "layouts", layout+".html"))
	}
	files = append(files, file)
	files = append(files, partials...)
	tpl, err := template.New(filepath.Base(files[0])).Funcs(s.funcs).ParseFiles(files...)
	if err != nil {
		return errors.Wrapf(err, "failed to parse view %v", name)
	}
	k := key(name, layout)
	s.tpls[k] = tpl
	s.re.Add(k, tpl)
	log.Debugf("registered template %v", k)
	return nil
}

func key(name string, layout string) string {
	if layout == "" {
		return name
	}
	return name + "@" + layout
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

type Builder[C Context] struct {
	m *Manager[C]
	v *view
}

func (s Builder[C]) WithLayout(name string) Builder[C] {
	s.v.layout = name
	return s
}

func (s Builder[C]) Build(name string) *Template[C] {
	return &Template[C]{
		m:   s.m,
		key: key(name, s.v.layout),
	}
}

type Template[C Context] struct {
	m   *Manager[C]
	key string
}

func (s *Template[C]) HTML(code int, ctx C) {
	ctx.GetGinContext().HTML(code, s.key, ctx)
}

// ToString renders the template outside of a response.
func (s *Template[C]) ToString(ctx C) (string, error) {
	tpl, ok := s.m.tpls[s.key]
	if !ok {
		return "", errors.Errorf("template %v is not initialized", s.key)
	}
	var b bytes.Buffer
	if err := tpl.Execute(&b, ctx); err != nil {
		return "", errors.Wrapf(err, "failed to render %v", s.key)
	}
	return b.String(), nil
}
