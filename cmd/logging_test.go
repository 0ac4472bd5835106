package cmd

import (
	"bytes"
	"flag"
	"os"
	"strings"
	"testing"

	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/urfave/cli"
)

func globalContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("krender", flag.ContinueOnError)
	set.Bool("v", false, "")
	set.Bool("vv", false, "")
	set.String("log-level", "", "")
	set.String("log-module", "", "")
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	parent := cli.NewContext(nil, set, nil)
	return cli.NewContext(nil, flag.NewFlagSet("bench", flag.ContinueOnError), parent)
}

func TestSetupLoggingErrors(t *testing.T) {
	type spec struct {
		args []string
		err  bool
	}
	specs := []spec{
		{[]string{}, false},
		{[]string{"-vv"}, false},
		{[]string{"-log-level", "warning"}, false},
		{[]string{"-log-level", "loud"}, true},
		{[]string{"-log-module", "kdtree=debug, bvh=info"}, false},
		{[]string{"-log-module", "kdtree"}, true},
		{[]string{"-log-module", "=debug"}, true},
		{[]string{"-log-module", "bvh=loud"}, true},
	}
	defer log.SetSink(os.Stdout)

	for index, s := range specs {
		log.SetSink(&bytes.Buffer{})
		err := setupLogging(globalContext(t, s.args...))
		if (err != nil) != s.err {
			t.Fatalf("[spec %d] expected error to be %t; got %v", index, s.err, err)
		}
	}
}

func TestSetupLoggingModuleLevels(t *testing.T) {
	var buf bytes.Buffer
	log.SetSink(&buf)
	defer log.SetSink(os.Stdout)

	if err := setupLogging(globalContext(t, "-log-level", "error", "-log-module", "kdtree=debug")); err != nil {
		t.Fatal(err)
	}
	log.New("kdtree").Debug("split stats")
	log.New("bvh").Warning("dropped")

	out := buf.String()
	if !strings.Contains(out, "split stats") {
		t.Fatalf("expected debug output from the kdtree logger; got %q", out)
	}
	if strings.Contains(out, "dropped") {
		t.Fatalf("expected warnings below the global error level to be filtered; got %q", out)
	}
}
