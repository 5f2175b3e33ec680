package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"
	wi "github.com/webtor-io/download-console/handlers/index"
	sess "github.com/webtor-io/download-console/handlers/session"
	wt "github.com/webtor-io/download-console/handlers/thumbnail"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/media"
	"github.com/webtor-io/download-console/services/template"
	w "github.com/webtor-io/download-console/services/web"
)

func makeServeCMD() cli.Command {
	serveCMD := cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serves web server",
		Action:  serve,
	}
	configureServe(&serveCMD)
	return serveCMD
}

func configureServe(c *cli.Command) {
	c.Flags = cs.RegisterProbeFlags(c.Flags)
	c.Flags = cs.RegisterPprofFlags(c.Flags)
	c.Flags = w.RegisterFlags(c.Flags)
	c.Flags = w.RegisterHelperFlags(c.Flags)
	c.Flags = sess.RegisterFlags(c.Flags)
	c.Flags = cs.RegisterRedisClientFlags(c.Flags)
	c.Flags = console.RegisterFlags(c.Flags)
	c.Flags = wi.RegisterFlags(c.Flags)
	c.Flags = wt.RegisterFlags(c.Flags)
	c.Flags = configureConsole(c.Flags)
}

func serve(c *cli.Context) error {
	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting template renderer
	re := multitemplate.NewRenderer()

	// Setting TemplateManager
	tm := template.NewManager[*w.Context](re).
		WithHelper(w.NewHelper(c)).
		WithHelper(wt.NewHelper(c))

	var servers []cs.Servable
	// Setting Probe
	probe := cs.NewProbe(c)
	if probe != nil {
		servers = append(servers, probe)
		defer probe.Close()
	}

	// Setting Pprof
	pprof := cs.NewPprof(c)
	if pprof != nil {
		servers = append(servers, pprof)
		defer pprof.Close()
	}

	// Setting Gin
	r := gin.Default()
	r.RedirectTrailingSlash = false
	r.HTMLRender = re

	// Setting Web
	web, err := w.New(c, r)
	if err != nil {
		return err
	}
	servers = append(servers, web)
	defer web.Close()

	// Setting Session
	err = sess.RegisterHandler(c, r, []string{
		"/api/",
	})
	if err != nil {
		return err
	}

	// Setting Media API
	mapi := media.New(c, cl)
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := mapi.Ping(pctx); err != nil {
		log.WithError(err).Warn("media api is not reachable yet")
	}
	pcancel()

	// Setting Redis
	redis := cs.NewRedisClient(c)
	defer redis.Close()

	// Setting Console Store
	store, err := console.NewStore(c, redis)
	if err != nil {
		return err
	}

	// Setting Console
	cons := console.New(mapi, store)

	// Setting IndexHandler
	wi.RegisterHandler(r, tm, cons, wi.NewConfig(c))

	// Setting ThumbnailHandler
	wt.RegisterHandler(c, r, cl, cons)

	// Render templates
	err = tm.Init()
	if err != nil {
		return err
	}

	// Setting Serve
	serve := cs.NewServe(servers...)

	// And SERVE!
	err = serve.Serve()
	if err != nil {
		log.WithError(err).Error("got server error")
	}
	return err
}
