package session

import (
	"context"

	"github.com/rs/zerolog"
)

// ResultSink receives finished and reset games. Sinks run on their own
// goroutine and never block room traffic.
type ResultSink interface {
	Record(ctx context.Context, r Result) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, r Result) error

func (f ResultSinkFunc) Record(ctx context.Context, r Result) error {
	return f(ctx, r)
}

// LogSink writes every result to a logger.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Record(_ context.Context, r Result) error {
	ev := s.Log.Info().
		Str("kind", r.Kind).
		Str("room", r.RoomCode).
		Interface("scores", r.Scores).
		Time("at", r.At)
	if r.Winner != "" {
		ev = ev.Str("winner", r.Winner).Ints("winningCells", r.WinningCells)
	}
	if r.LastWinner != nil {
		ev = ev.Str("lastWinner", *r.LastWinner)
	}
	ev.Msg("game result")
	return nil
}

// publish hands r to the sink goroutine, dropping it when the buffer is full.
func (c *Coordinator) publish(r Result) {
	if len(c.sinks) == 0 {
		return
	}
	select {
	case c.results <- r:
	default:
		c.log.Warn().Str("room", r.RoomCode).Str("kind", r.Kind).Msg("result buffer full, dropping result")
	}
}

func (c *Coordinator) runSinks(done chan<- struct{}) {
	defer close(done)
	for r := range c.results {
		for _, sink := range c.sinks {
			c.record(sink, r)
		}
	}
}

func (c *Coordinator) record(sink ResultSink, r Result) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error().Interface("panic", p).Msg("result sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := sink.Record(ctx, r); err != nil {
		c.log.Error().Err(err).Str("room", r.RoomCode).Str("kind", r.Kind).Msg("result sink failed")
	}
}
