package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/game/session"
)

var ErrNoPrefix = errors.New("subject prefix is required")

var _ session.ResultSink = (*Publisher)(nil)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher is a session.ResultSink that sends results to NATS.
type Publisher struct {
	conn   Conn
	prefix string
	log    zerolog.Logger
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, log zerolog.Logger) (*Publisher, error) {
	if prefix == "" {
		return nil, ErrNoPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		log:    log.With().Str("component", "events").Logger(),
	}, nil
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, log zerolog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("morpion"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}

// Subject returns the subject a result is published on.
func (p *Publisher) Subject(r session.Result) string {
	return p.prefix + "." + subjectToken(r.RoomCode) + "." + r.Kind
}

// Record publishes r.
func (p *Publisher) Record(ctx context.Context, r session.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	subject := p.Subject(r)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.log.Debug().Str("subject", subject).Msg("result published")
	return nil
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
