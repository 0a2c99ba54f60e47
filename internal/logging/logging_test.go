package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantInfo  bool
		wantDebug bool
	}{
		{name: "default", opts: Options{}, wantInfo: true},
		{name: "debug", opts: Options{Debug: true}, wantInfo: true, wantDebug: true},
		{name: "quiet", opts: Options{Quiet: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log, closer, err := New(&buf, "", tc.opts)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = closer() }()

			log.Debug("dbg line")
			log.Info("info line")
			log.Warn("warn line")

			out := buf.String()
			if got := strings.Contains(out, "info line"); got != tc.wantInfo {
				t.Fatalf("info visible = %v want %v\n%s", got, tc.wantInfo, out)
			}
			if got := strings.Contains(out, "dbg line"); got != tc.wantDebug {
				t.Fatalf("debug visible = %v want %v\n%s", got, tc.wantDebug, out)
			}
			if !strings.Contains(out, "warn line") {
				t.Fatalf("warnings must always reach stderr\n%s", out)
			}
		})
	}
}

func TestNewFileGetsDebugRegardless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	log, closer, err := New(&buf, path, Options{Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("dbg line")
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "dbg line") {
		t.Fatalf("run log lost debug output: %q", raw)
	}
	if strings.Contains(buf.String(), "dbg line") {
		t.Fatal("quiet stderr got debug output")
	}
}

func TestWithAttrsFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	log, closer, err := New(&buf, path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	log.With("invocation", "abcd1234").Info("hello")
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	for name, content := range map[string]string{"stderr": buf.String(), "file": readFile(t, path)} {
		if !strings.Contains(content, "invocation=abcd1234") {
			t.Fatalf("%s output lost attrs: %q", name, content)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}
