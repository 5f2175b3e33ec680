package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const CSRFKey = "csrf"

// Context is the value every page template is executed with.
type Context struct {
	Data    any
	Err     error
	Notices []string
	CSRF    string
	c       *gin.Context
}

func NewContext(c *gin.Context) *Context {
	return &Context{
		CSRF: c.GetString(CSRFKey),
		c:    c,
	}
}

func (s *Context) WithData(obj any) *Context {
	s.Data = obj
	return s
}

func (s *Context) WithErr(err error) *Context {
	s.Err = err
	return s
}

func (s *Context) WithNotices(n []string) *Context {
	s.Notices = n
	return s
}

func (s *Context) GetGinContext() *gin.Context {
	return s.c
}

// RedirectToIndex finishes a form post by sending the browser back to the
// console page.
func RedirectToIndex(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
