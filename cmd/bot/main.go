// Command bot plays tic-tac-toe against another client through a morpion
// server. Two bots started with the same room play each other; --pair starts
// both seats in one process.
//
// It drives the whole WebSocket protocol (join, moves, wins, resets) and is
// handy as a smoke test against a running server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/morpion/transport/websocket"
)

func main() {
	cmd := &cli.Command{
		Name:  "bot",
		Usage: "Play tic-tac-toe games through a morpion server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8080/ws", Usage: "WebSocket endpoint", Sources: cli.EnvVars("MORPION_WS_URL")},
			&cli.StringFlag{Name: "room", Value: "bots", Usage: "room code"},
			&cli.StringFlag{Name: "name", Value: "bot", Usage: "display name"},
			&cli.IntFlag{Name: "games", Value: 3, Usage: "games to play before leaving"},
			&cli.BoolFlag{Name: "pair", Usage: "play both seats from this process"},
			&cli.BoolFlag{Name: "v", Usage: "log every frame"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := zerolog.InfoLevel
	if cmd.Bool("v") {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := cmd.String("url")
	room := cmd.String("room")
	games := int(cmd.Int("games"))
	names := []string{cmd.String("name")}
	if cmd.Bool("pair") {
		names = []string{names[0] + "-x", names[0] + "-o"}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			// the second seat joins after the first so seating is predictable
			if i > 0 {
				time.Sleep(200 * time.Millisecond)
			}
			p := NewPlayer(name, room, games, time.Now().UnixNano()+int64(i))
			if err := play(ctx, url, p, log.With().Str("player", name).Logger()); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}(i, name)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// play connects p and runs it until it is done or ctx ends.
func play(ctx context.Context, url string, p *Player, log zerolog.Logger) error {
	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	send := func(frames ...frame) error {
		for _, f := range frames {
			data, err := json.Marshal(f)
			if err != nil {
				return err
			}
			log.Debug().RawJSON("frame", data).Msg("send")
			if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		return nil
	}

	if err := send(p.Join()); err != nil {
		return err
	}
	log.Info().Msg("joined, waiting for an opponent")

	for !p.Done() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		log.Debug().RawJSON("frame", data).Msg("recv")

		env, err := websocket.DecodeEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Msg("undecodable frame")
			continue
		}
		switch env.Event {
		case "gameWon":
			var won struct {
				Winner string `json:"winner"`
			}
			json.Unmarshal(env.Data, &won)
			log.Info().Str("winner", won.Winner).Msg("game won")
		case "scoreUpdate":
			log.Info().Str("scores", strings.TrimSpace(string(env.Data))).Msg("scores")
		}

		out, err := p.Handle(env)
		if errors.Is(err, ErrOpponentLeft) {
			log.Info().Int("played", p.Played()).Msg("opponent left")
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(out...); err != nil {
			return err
		}
	}

	log.Info().Int("played", p.Played()).Msg("done")
	return nil
}
