package main

import (
	"github.com/urfave/cli"
)

func configure(app *cli.App) {
	serveCMD := makeServeCMD()
	infoCMD := makeInfoCMD()
	downloadCMD := makeDownloadCMD()
	cleanCMD := makeCleanCMD()
	app.Commands = []cli.Command{serveCMD, infoCMD, downloadCMD, cleanCMD}
}
