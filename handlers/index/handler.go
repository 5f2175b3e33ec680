package index

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli"
	"github.com/webtor-io/download-console/handlers/session"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/template"
	"github.com/webtor-io/download-console/services/web"
)

const apiAllowOriginsFlag = "api-allow-origins"

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringSliceFlag{
			Name:   apiAllowOriginsFlag,
			Usage:  "origins allowed to poll the state api with credentials",
			EnvVar: "API_ALLOW_ORIGINS",
		},
	)
}

type Handler struct {
	tb        template.Builder[*web.Context]
	cs        *console.Console
	consoleID func(c *gin.Context) string
}

type Config struct {
	AllowOrigins []string
}

func NewConfig(c *cli.Context) *Config {
	var origins []string
	for _, o := range c.StringSlice(apiAllowOriginsFlag) {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return &Config{
		AllowOrigins: origins,
	}
}

func RegisterHandler(r *gin.Engine, tm *template.Manager[*web.Context], cs *console.Console, cfg *Config) {
	h := &Handler{
		tb:        tm.MustRegisterViews("*").WithLayout("main"),
		cs:        cs,
		consoleID: session.GetConsoleID,
	}
	r.GET("/", h.index)
	r.POST("/info", h.info)
	r.POST("/download", h.download)

	gr := r.Group("/api")
	if cfg != nil && len(cfg.AllowOrigins) > 0 {
		gr.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET"},
			AllowCredentials: true,
		}))
	}
	gr.GET("/state", h.state)
}
