package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/urfave/cli"
)

func makeCleanCMD() cli.Command {
	cleanCMD := cli.Command{
		Name:   "clean",
		Usage:  "Asks the media service to remove its finished downloads",
		Action: clean,
	}
	configureClean(&cleanCMD)
	return cleanCMD
}

func configureClean(c *cli.Command) {
	c.Flags = configureConsole(c.Flags)
}

func clean(c *cli.Context) error {
	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting Media API
	_, mapi := makeConsole(c, cl)

	m, err := mapi.Clean(context.Background())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.App.Writer, m.Message)
	return nil
}
