package main

import (
	"fmt"
	"os"

	"github.com/LdDl/mor-go/logger"
	"github.com/urfave/cli"
)

var app = cli.NewApp()
var log = logger.Log

func init() {
	app.Name = "morctl"
	app.Usage = "Inspect and maintain .mor tracking containers"
	app.UsageText = "morctl [command] arguments"
	app.HideVersion = true
	app.Commands = []cli.Command{
		{
			Name:      "info",
			Aliases:   []string{"i"},
			Usage:     "Print header, frame runs, zones and flags of a container",
			ArgsUsage: "<file.mor>",
			Action:    infoAction,
		},
		{
			Name:      "status",
			Aliases:   []string{"s"},
			Usage:     "Print marked status of every video in a project",
			ArgsUsage: "<project>",
			Action:    statusAction,
		},
		{
			Name:      "mark",
			Usage:     "Mark video as fully annotated",
			ArgsUsage: "<project> <video>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "unset", Usage: "clear the flag instead"},
			},
			Action: markAction,
		},
		{
			Name:      "propagate",
			Aliases:   []string{"p"},
			Usage:     "Copy zones of a container into the project template and every video",
			ArgsUsage: "<project> <template.mor>",
			Action:    propagateAction,
		},
		{
			Name:      "stats",
			Usage:     "Calculate time and distance inside zones",
			ArgsUsage: "<file.mor>",
			Flags: []cli.Flag{
				cli.Float64Flag{Name: "fps", Usage: "video frame rate, project fps or 30 when not set"},
				cli.IntFlag{Name: "frame", Value: -1, Usage: "last frame to include, all when negative"},
				cli.Float64Flag{Name: "scale", Usage: "pixels per metre, project scale_factor when not set; distances stay in pixels when uncalibrated"},
				cli.BoolFlag{Name: "save", Usage: "store zone statistics back into the container"},
			},
			Action: statsAction,
		},
	}
}

func getArgs(c *cli.Context, names ...string) ([]string, error) {
	args := make([]string, len(names))
	for i, name := range names {
		args[i] = c.Args().Get(i)
		if args[i] == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
	}
	return args, nil
}

func main() {
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
