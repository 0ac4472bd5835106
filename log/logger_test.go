package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	type spec struct {
		in  string
		exp Level
		err bool
	}
	specs := []spec{
		{"debug", Debug, false},
		{"INFO", Info, false},
		{"warn", Warning, false},
		{"error", Error, false},
		{"loud", Notice, true},
	}

	for index, s := range specs {
		level, err := ParseLevel(s.in)
		if (err != nil) != s.err {
			t.Fatalf("[spec %d] expected error to be %t; got %v", index, s.err, err)
		}
		if level != s.exp {
			t.Fatalf("[spec %d] expected level %d; got %d", index, s.exp, level)
		}
	}
}

func TestModuleLevel(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)

	SetLevel(Notice)
	SetModuleLevel("chatty", Debug)

	New("chatty").Debug("visible")
	New("quiet").Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "visible") {
		t.Fatalf("expected debug output for module with debug level; got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug output to be filtered for module with notice level; got %q", out)
	}
}
