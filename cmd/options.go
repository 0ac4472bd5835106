package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/types"
	"github.com/urfave/cli"
)

// Flags shared by every command that builds or loads a scene.
var buildFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "JSON file with build options",
	},
	cli.IntFlag{
		Name:  "workers",
		Usage: "number of build workers (0 = detected CPU count)",
	},
	cli.IntFlag{
		Name:  "leaf-triangles",
		Usage: "stop splitting kd-tree nodes with this many triangles or fewer",
	},
	cli.IntFlag{
		Name:  "max-depth",
		Usage: "maximum kd-tree depth",
	},
	cli.BoolFlag{
		Name:  "cull",
		Usage: "skip back-facing triangles",
	},
}

// Load build options from the config file and command line flags.
func loadOptions(ctx *cli.Context) (config.Options, error) {
	opts := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		if opts, err = config.Load(path); err != nil {
			return opts, err
		}
	}
	if ctx.IsSet("workers") {
		opts.Workers = ctx.Int("workers")
	}
	if ctx.IsSet("leaf-triangles") {
		opts.LeafTriangles = ctx.Int("leaf-triangles")
	}
	if ctx.IsSet("max-depth") {
		opts.MaxDepth = ctx.Int("max-depth")
	}
	if ctx.Bool("cull") {
		opts.CullBackFaces = true
	}
	return opts, opts.Validate()
}

// Parse a comma separated list of floats such as "1,2.5,-3".
func parseFloats(value string, n int) ([]float32, error) {
	parts := strings.Split(value, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values; got %q", n, value)
	}
	out := make([]float32, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func parseVec3(value string) (types.Vec3, error) {
	f, err := parseFloats(value, 3)
	if err != nil {
		return types.Vec3{}, err
	}
	return types.XYZ(f[0], f[1], f[2]), nil
}
