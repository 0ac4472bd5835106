package cmd

import (
	"fmt"
	"strings"

	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/urfave/cli"
)

var logger = log.New("krender")

// Apply the global verbosity flags. -v and -vv are shorthands for
// --log-level info and debug; --log-module overrides single loggers with a
// comma separated list such as "kdtree=debug,bvh=info".
func setupLogging(ctx *cli.Context) error {
	level := log.Notice
	if name := ctx.GlobalString("log-level"); name != "" {
		var err error
		if level, err = log.ParseLevel(name); err != nil {
			return err
		}
	}
	if ctx.GlobalBool("v") {
		level = log.Info
	}
	if ctx.GlobalBool("vv") {
		level = log.Debug
	}
	log.SetLevel(level)

	modules := ctx.GlobalString("log-module")
	if modules == "" {
		return nil
	}
	for _, entry := range strings.Split(modules, ",") {
		name, levelName, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid module level %q; expected name=level", entry)
		}
		moduleLevel, err := log.ParseLevel(levelName)
		if err != nil {
			return err
		}
		log.SetModuleLevel(name, moduleLevel)
	}
	return nil
}
