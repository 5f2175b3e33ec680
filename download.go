package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/download-console/services/console"
)

const outputDirFlag = "output-dir"

func makeDownloadCMD() cli.Command {
	downloadCMD := cli.Command{
		Name:    "download",
		Aliases: []string{"d"},
		Usage:   "Fetches video info and downloads the video",
		Action:  download,
	}
	configureDownload(&downloadCMD)
	return downloadCMD
}

func configureDownload(c *cli.Command) {
	c.Flags = append(c.Flags,
		cli.StringFlag{
			Name:  urlFlag,
			Usage: "video url",
		},
		cli.StringFlag{
			Name:  resolutionFlag,
			Usage: "resolution to download, as listed by info",
		},
		cli.StringFlag{
			Name:   outputDirFlag,
			Usage:  "directory to save downloads to",
			Value:  ".",
			EnvVar: "OUTPUT_DIR",
		},
	)
	c.Flags = configureConsole(c.Flags)
}

func download(c *cli.Context) error {
	url := c.String(urlFlag)
	if url == "" {
		return errors.Errorf("%v flag is required", urlFlag)
	}
	res := c.String(resolutionFlag)

	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting Console
	cons, _ := makeConsole(c, cl)

	ctx := context.Background()

	// The title names the file, so info goes first as it does on the page.
	st, err := cons.FetchMetadata(ctx, cliConsoleID, url)
	if err != nil {
		return err
	}
	log.WithField("title", st.Info.Title).WithField("resolution", res).Info("downloading video")

	sv := &console.FileSaver{Dir: c.String(outputDirFlag)}
	if err = cons.DownloadMedia(ctx, cliConsoleID, url, res, sv); err != nil {
		return err
	}
	fi, err := os.Stat(sv.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %v", sv.Path)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "%v (%v)\n", sv.Path, humanize.Bytes(uint64(fi.Size())))
	return nil
}
