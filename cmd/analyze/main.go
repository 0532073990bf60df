// Command analyze prints standings from morpion game results. It either
// follows the NATS result stream of a running server or reads results saved
// as JSON lines (for example from `nats sub --raw`).
//
// Standings are grouped by room: current scores, wins, draws and resets, plus
// an overall leaderboard of wins per display name.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/morpion/game/room"
	"github.com/wricardo/morpion/game/session"
	"github.com/wricardo/morpion/transport/events"
)

type roomStats struct {
	Scores room.Scores
	Wins   int
	Draws  int
	Resets int
	LastAt time.Time
}

// Standings aggregates results as they arrive.
type Standings struct {
	rooms map[string]*roomStats
	wins  map[string]int
	total int
}

func NewStandings() *Standings {
	return &Standings{
		rooms: make(map[string]*roomStats),
		wins:  make(map[string]int),
	}
}

// Apply folds one result in. Scores always come from the latest result since
// the server reports the whole room ledger each time.
func (s *Standings) Apply(r session.Result) {
	rs, ok := s.rooms[r.RoomCode]
	if !ok {
		rs = &roomStats{}
		s.rooms[r.RoomCode] = rs
	}
	s.total++

	switch r.Kind {
	case session.ResultWon:
		rs.Wins++
		if r.Winner != "" {
			s.wins[r.Winner]++
		}
	case session.ResultReset:
		rs.Resets++
		if r.LastWinner == nil {
			rs.Draws++
		}
	}
	if r.Scores != nil {
		rs.Scores = r.Scores
	}
	if r.At.After(rs.LastAt) {
		rs.LastAt = r.At
	}
}

// Total is the number of results applied.
func (s *Standings) Total() int { return s.total }

type entry struct {
	name  string
	count int
}

func ranked(m map[string]int) []entry {
	out := make([]entry, 0, len(m))
	for name, n := range m {
		out = append(out, entry{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

// Print writes the standings report.
func (s *Standings) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Standings (%d results, %d rooms) ===\n", s.total, len(s.rooms))

	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		rs := s.rooms[code]
		fmt.Fprintf(w, "\nRoom %s: %d wins, %d draws, %d resets\n", code, rs.Wins, rs.Draws, rs.Resets)
		if !rs.LastAt.IsZero() {
			fmt.Fprintf(w, "  last result: %s\n", rs.LastAt.UTC().Format(time.RFC3339))
		}
		for _, e := range ranked(rs.Scores) {
			fmt.Fprintf(w, "  %-16s %d\n", e.name, e.count)
		}
	}

	if len(s.wins) == 0 {
		return
	}
	fmt.Fprintln(w, "\nLeaderboard:")
	for i, e := range ranked(s.wins) {
		fmt.Fprintf(w, "  %2d. %-16s %d\n", i+1, e.name, e.count)
	}
}

// readResults applies every JSON line of r. Blank and undecodable lines are
// counted and skipped.
func readResults(r io.Reader, s *Standings) (skipped int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var res session.Result
		if err := json.Unmarshal([]byte(line), &res); err != nil || res.Kind == "" {
			skipped++
			continue
		}
		s.Apply(res)
	}
	return skipped, scanner.Err()
}

func runFile(cmd *cli.Command, path string) error {
	in := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	standings := NewStandings()
	skipped, err := readResults(in, standings)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	standings.Print(cmd.Root().Writer)
	if skipped > 0 {
		fmt.Fprintf(cmd.Root().Writer, "\n(%d lines skipped)\n", skipped)
	}
	return nil
}

// follow applies results from the stream until ctx ends or limit results have
// arrived, printing standings every interval.
func follow(ctx context.Context, w io.Writer, results <-chan session.Result, interval time.Duration, limit int) *Standings {
	standings := NewStandings()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			standings.Print(w)
			return standings
		case <-ticker.C:
			standings.Print(w)
		case r := <-results:
			standings.Apply(r)
			if limit > 0 && standings.Total() >= limit {
				standings.Print(w)
				return standings
			}
		}
	}
}

func runNATS(ctx context.Context, cmd *cli.Command, log zerolog.Logger) error {
	conn, err := events.Connect(cmd.String("nats-url"), log)
	if err != nil {
		return err
	}
	defer conn.Drain()

	results := make(chan session.Result, 256)
	sub, err := events.Subscribe(conn, cmd.String("prefix"), log, func(subject string, r session.Result) {
		select {
		case results <- r:
		default:
			log.Warn().Str("subject", subject).Msg("analyzer behind, result dropped")
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Str("subject", sub.Subject).Msg("following results")
	follow(ctx, cmd.Root().Writer, results, cmd.Duration("interval"), int(cmd.Int("count")))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "Print standings from morpion game results",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nats-url", Value: "nats://localhost:4222", Usage: "NATS server to follow", Sources: cli.EnvVars("MORPION_NATS_URL")},
			&cli.StringFlag{Name: "prefix", Value: "morpion.rooms", Usage: "result subject prefix"},
			&cli.StringFlag{Name: "file", Usage: "read JSON-lines results from a file (- for stdin) instead of NATS"},
			&cli.IntFlag{Name: "count", Usage: "stop after this many results (0 follows forever)"},
			&cli.DurationFlag{Name: "interval", Value: 30 * time.Second, Usage: "how often to print standings while following"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

			if path := cmd.String("file"); path != "" {
				return runFile(cmd, path)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runNATS(ctx, cmd, log)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}
