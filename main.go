package main

import (
	"os"

	"github.com/Kai-Fu/KRender-sub000/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "krender"
	app.Usage = "build and query ray tracing acceleration structures"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, notice, warning or error",
		},
		cli.StringFlag{
			Name:  "log-module",
			Usage: "per-logger levels such as kdtree=debug,bvh=info",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "bench",
			Usage: "build a procedural scene and trace random rays against it",
			Description: `
Generate object trees from random triangle soups, scatter instances of them
through the scene and build the acceleration structure. Random rays are then
traced in parallel and build and trace timings are reported.

The built scene can optionally be saved to a zip archive that the info and
update commands accept.`,
			Flags:  cmd.BenchFlags,
			Action: cmd.Bench,
		},
		{
			Name:      "info",
			Usage:     "print information about a compiled scene",
			ArgsUsage: "scene_file.zip",
			Flags:     cmd.InfoFlags,
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:  "update",
			Usage: "append an instance transform update for a compiled scene",
			Description: `
Record a new start/end placement for one instance. The scene file is left
untouched; pass the update file to "info --updates" to apply it.`,
			ArgsUsage: "scene_file.zip updates_file",
			Flags:     append(cmd.UpdateFlags, cmd.InfoFlags[1:]...),
			Action:    cmd.AppendUpdate,
		},
	}

	app.Run(os.Args)
}
