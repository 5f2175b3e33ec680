package main

import (
	"net/http"

	"github.com/urfave/cli"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/media"
)

func configureConsole(f []cli.Flag) []cli.Flag {
	f = media.RegisterFlags(f)
	return f
}

// makeConsole builds a console around a process local store, which is all
// one-shot commands need.
func makeConsole(c *cli.Context, cl *http.Client) (*console.Console, *media.Api) {
	// Setting Media API
	mapi := media.New(c, cl)

	// Setting Console
	return console.New(mapi, console.NewMemoryStore(0)), mapi
}
