package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestValidateFile_Valid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ok.yaml", `
server:
  port: 9000
  allowedOrigins: [http://localhost]
auth:
  redisAddr: localhost:6379
events:
  natsUrl: nats://localhost:4222
`)

	result := validateFile(path)
	if !result.Valid {
		t.Fatalf("Expected valid settings, got errors: %v", result.Errors)
	}
	if result.File != "ok.yaml" {
		t.Errorf("Expected file name ok.yaml, got %s", result.File)
	}
	if !containsLine(result.Notes, "✓ Port: 9000") {
		t.Errorf("Expected port summary, got %v", result.Notes)
	}
	for _, note := range result.Notes {
		if strings.HasPrefix(note, "⚠") {
			t.Errorf("Unexpected warning: %s", note)
		}
	}
}

func TestValidateFile_Warnings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dev.json", `{
		"auth": {"secret": "inline"},
		"hub": {"pongWait": "60s", "pingPeriod": "55s"}
	}`)

	result := validateFile(path)
	if !result.Valid {
		t.Fatalf("Expected valid settings, got errors: %v", result.Errors)
	}

	for _, want := range []string{"auth.secret", "auth.redisAddr", "events.natsUrl", "hub.pingPeriod", "server.allowedOrigins"} {
		found := false
		for _, note := range result.Notes {
			if strings.HasPrefix(note, "⚠") && strings.Contains(note, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected a warning about %s, got %v", want, result.Notes)
		}
	}
}

func TestValidateFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		content  string
		wantErrs []string
	}{
		{
			name:     "Out of range values",
			file:     "bad.yaml",
			content:  "server:\n  port: 0\nrooms:\n  mailboxSize: -1\n",
			wantErrs: []string{"server.port 0 out of range", "rooms.mailboxSize must be positive"},
		},
		{
			name:     "Malformed JSON",
			file:     "broken.json",
			content:  `{"server": {"port": }`,
			wantErrs: []string{"failed to parse config"},
		},
		{
			name:     "Unsupported format",
			file:     "settings.toml",
			content:  "port = 8080",
			wantErrs: []string{"unsupported configuration format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateFile(writeFile(t, dir, tt.file, tt.content))
			if result.Valid {
				t.Fatal("Expected invalid result")
			}
			if len(result.Errors) < len(tt.wantErrs) {
				t.Fatalf("Expected %d errors, got %v", len(tt.wantErrs), result.Errors)
			}
			for _, want := range tt.wantErrs {
				found := false
				for _, e := range result.Errors {
					if strings.Contains(e, want) {
						found = true
					}
				}
				if !found {
					t.Errorf("Expected error containing %q, got %v", want, result.Errors)
				}
			}
		})
	}

	t.Run("Missing file", func(t *testing.T) {
		result := validateFile(filepath.Join(dir, "nope.yaml"))
		if result.Valid || len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "configuration not found") {
			t.Errorf("Unexpected result: %+v", result)
		}
	})
}

func TestDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "")
	writeFile(t, dir, "a.json", "{}")
	writeFile(t, dir, "c.yml", "")
	writeFile(t, dir, "notes.txt", "")

	files, err := defaultFiles(dir)
	if err != nil {
		t.Fatalf("defaultFiles failed: %v", err)
	}
	want := []string{"a.json", "b.yaml", "c.yml"}
	if len(files) != len(want) {
		t.Fatalf("Expected %v, got %v", want, files)
	}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, f)
		}
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	ok := report(&buf, []ValidationResult{
		{File: "good.yaml", Valid: true, Notes: []string{"✓ Port: 8080"}},
		{File: "bad.yaml", Errors: []string{"server.port 0 out of range"}},
	})

	if ok {
		t.Error("Expected report to flag the invalid file")
	}
	out := buf.String()
	for _, want := range []string{"good.yaml\n✅ VALID\n  ✓ Port: 8080", "bad.yaml\n❌ INVALID\n  ❌ server.port 0 out of range", "Some settings files have errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestRun(t *testing.T) {
	newCmd := func(out *bytes.Buffer) *cli.Command {
		return &cli.Command{
			Name:   "validate",
			Writer: out,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Value: "configs"},
			},
			Action: run,
		}
	}

	t.Run("Repository configs", func(t *testing.T) {
		var out bytes.Buffer
		if err := newCmd(&out).Run(context.Background(), []string{"validate", "--dir", "../../configs"}); err != nil {
			t.Fatalf("Expected shipped settings to validate: %v\n%s", err, out.String())
		}
		if !strings.Contains(out.String(), "All settings files are valid") {
			t.Errorf("Unexpected output:\n%s", out.String())
		}
	})

	t.Run("Invalid argument", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bad.yaml", "server:\n  port: 70000\n")
		var out bytes.Buffer
		err := newCmd(&out).Run(context.Background(), []string{"validate", path})
		if !errors.Is(err, errInvalid) {
			t.Errorf("Expected errInvalid, got %v", err)
		}
	})

	t.Run("Empty directory", func(t *testing.T) {
		var out bytes.Buffer
		err := newCmd(&out).Run(context.Background(), []string{"validate", "--dir", t.TempDir()})
		if err == nil || !strings.Contains(err.Error(), "no settings files") {
			t.Errorf("Expected no settings files error, got %v", err)
		}
	})
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}
