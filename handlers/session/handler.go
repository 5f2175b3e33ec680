package session

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	csrf "github.com/utrack/gin-csrf"
	"github.com/webtor-io/download-console/services/web"
)

const (
	sessionSecretFlag = "secret"
	sessionNameFlag   = "session-name"
	consoleIDKey      = "console-id"
	sessionMaxAge     = 60 * 60 * 24 * 30
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   sessionSecretFlag,
			Usage:  "session secret",
			Value:  "",
			EnvVar: "SECRET",
		},
		cli.StringFlag{
			Name:   sessionNameFlag,
			Usage:  "session cookie name",
			Value:  "download-console",
			EnvVar: "SESSION_NAME",
		},
	)
}

type Options struct {
	Secret string
	Name   string
	CSRF   bool
	// NoCSRF lists path prefixes excluded from csrf checks.
	NoCSRF []string
}

func RegisterHandler(c *cli.Context, r *gin.Engine, noCSRF []string) error {
	secret := c.String(sessionSecretFlag)
	if secret == "" {
		return errors.Errorf("%v flag is required", sessionSecretFlag)
	}
	Register(r, &Options{
		Secret: secret,
		Name:   c.String(sessionNameFlag),
		CSRF:   true,
		NoCSRF: noCSRF,
	})
	return nil
}

// Register installs cookie sessions, optional csrf protection and the
// console id middleware on r.
func Register(r *gin.Engine, o *Options) {
	store := cookie.NewStore([]byte(o.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(o.Name, store))
	if o.CSRF {
		r.Use(csrfMiddleware(o.Secret, o.NoCSRF), csrfToken(o.NoCSRF))
	}
	r.Use(consoleID)
}

func skipCSRF(c *gin.Context, noCSRF []string) bool {
	for _, p := range noCSRF {
		if strings.HasPrefix(c.Request.URL.Path, p) {
			return true
		}
	}
	return false
}

func csrfMiddleware(secret string, noCSRF []string) gin.HandlerFunc {
	m := csrf.Middleware(csrf.Options{
		Secret: secret,
		ErrorFunc: func(c *gin.Context) {
			log.WithField("path", c.Request.URL.Path).Warn("csrf token mismatch")
			c.String(http.StatusBadRequest, "CSRF token mismatch")
			c.Abort()
		},
	})
	return func(c *gin.Context) {
		if skipCSRF(c, noCSRF) {
			c.Next()
			return
		}
		m(c)
	}
}

// csrfToken exposes the form token to templates through web.NewContext.
func csrfToken(noCSRF []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipCSRF(c, noCSRF) {
			return
		}
		c.Set(web.CSRFKey, csrf.GetToken(c))
	}
}

func consoleID(c *gin.Context) {
	session := sessions.Default(c)
	id, _ := session.Get(consoleIDKey).(string)
	if id == "" {
		id = uuid.NewString()
		session.Set(consoleIDKey, id)
		if err := session.Save(); err != nil {
			log.WithError(err).Error("failed to save session")
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	c.Set(consoleIDKey, id)
}

// GetConsoleID returns the id of the console bound to the browser session.
func GetConsoleID(c *gin.Context) string {
	return c.GetString(consoleIDKey)
}
