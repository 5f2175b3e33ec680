package web

import (
	"github.com/urfave/cli"
)

const appNameFlag = "app-name"

func RegisterHelperFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   appNameFlag,
			Usage:  "application name shown in page titles",
			Value:  "YouTube Video Downloader",
			EnvVar: "APP_NAME",
		},
	)
}

type Helper struct {
	appName string
}

func NewHelper(c *cli.Context) *Helper {
	return &Helper{
		appName: c.String(appNameFlag),
	}
}

func NewHelperWithAppName(name string) *Helper {
	return &Helper{
		appName: name,
	}
}

func (s *Helper) AppName() string {
	return s.appName
}
