package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const (
	urlFlag        = "url"
	resolutionFlag = "resolution"
	cliConsoleID   = "cli"
)

func makeInfoCMD() cli.Command {
	infoCMD := cli.Command{
		Name:    "info",
		Aliases: []string{"i"},
		Usage:   "Fetches video info",
		Action:  info,
	}
	configureInfo(&infoCMD)
	return infoCMD
}

func configureInfo(c *cli.Command) {
	c.Flags = append(c.Flags,
		cli.StringFlag{
			Name:  urlFlag,
			Usage: "video url",
		},
	)
	c.Flags = configureConsole(c.Flags)
}

func info(c *cli.Context) error {
	url := c.String(urlFlag)
	if url == "" {
		return errors.Errorf("%v flag is required", urlFlag)
	}

	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting Console
	cons, _ := makeConsole(c, cl)

	st, err := cons.FetchMetadata(context.Background(), cliConsoleID, url)
	if err != nil {
		return err
	}
	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "title:       %v\n", st.Info.Title)
	_, _ = fmt.Fprintf(w, "thumbnail:   %v\n", st.Info.ThumbnailURL)
	_, _ = fmt.Fprintf(w, "resolutions: %v\n", strings.Join(st.Info.Resolutions, ", "))
	return nil
}
