// Command validate checks morpion settings files before a deploy. For each
// file it reports:
//   - parse errors for .json, .yaml and .yml files
//   - every failed range or consistency check
//   - warnings for settings that run but are probably unintended, such as a
//     missing JWT secret or a ping period very close to the pong deadline
//
// With no arguments it validates everything in ./configs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/morpion/game/config"
)

// ValidationResult captures the outcome of validating a single file. Notes
// holds warnings and the summary of a valid file.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
	Notes  []string
}

func validateFile(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Valid: true}

	settings, err := config.LoadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = splitErrors(err)
		return result
	}

	result.Notes = append(result.Notes, warnings(settings)...)
	result.Notes = append(result.Notes,
		fmt.Sprintf("✓ Port: %d", settings.Server.Port),
		fmt.Sprintf("✓ Mailbox: %d, result buffer: %d", settings.Rooms.MailboxSize, settings.Rooms.ResultBuffer),
		fmt.Sprintf("✓ Heartbeat: ping %s, pong %s", settings.Hub.PingPeriod, settings.Hub.PongWait),
		fmt.Sprintf("✓ Store: %s", settings.Store.Path),
	)
	return result
}

// splitErrors flattens a joined validation error into one line per check.
func splitErrors(err error) []string {
	msg := strings.TrimPrefix(err.Error(), config.ErrInvalidConfig.Error()+": ")
	var out []string
	for _, line := range strings.Split(msg, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func warnings(s *config.Settings) []string {
	var out []string
	if s.Auth.Secret != "" {
		out = append(out, "⚠ auth.secret is set in the file; prefer MORPION_JWT_SECRET")
	}
	if s.Auth.RedisAddr == "" {
		out = append(out, "⚠ auth.redisAddr is empty; revoked tokens are kept in memory")
	}
	if s.Events.NATSURL == "" {
		out = append(out, "⚠ events.natsUrl is empty; game results are only logged")
	}
	if s.Hub.PingPeriod > s.Hub.PongWait*9/10 {
		out = append(out, fmt.Sprintf("⚠ hub.pingPeriod %s is above 90%% of hub.pongWait %s", s.Hub.PingPeriod, s.Hub.PongWait))
	}
	if len(s.Server.AllowedOrigins) == 0 {
		out = append(out, "⚠ server.allowedOrigins is empty; any origin may open a WebSocket")
	}
	return out
}

// defaultFiles lists the settings files in dir.
func defaultFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// report prints results and returns false when any file is invalid.
func report(w io.Writer, results []ValidationResult) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)
		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, note := range result.Notes {
				fmt.Fprintln(w, "  "+note)
			}
			continue
		}
		allValid = false
		fmt.Fprintln(w, "❌ INVALID")
		for _, e := range result.Errors {
			fmt.Fprintln(w, "  ❌ "+e)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All settings files are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some settings files have errors")
	}
	return allValid
}

var errInvalid = errors.New("invalid settings")

func run(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		var err error
		if files, err = defaultFiles(cmd.String("dir")); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no settings files in %s", cmd.String("dir"))
	}

	results := make([]ValidationResult, 0, len(files))
	for _, f := range files {
		results = append(results, validateFile(f))
	}
	if !report(cmd.Root().Writer, results) {
		return errInvalid
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "validate",
		Usage:     "Validate morpion settings files",
		ArgsUsage: "[file...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "configs", Usage: "directory scanned when no files are given"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		}
		os.Exit(1)
	}
}
