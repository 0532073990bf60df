package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/game/session"
)

// SubscribeConn is the part of *nats.Conn a subscriber needs.
type SubscribeConn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subscribe delivers every result published under prefix to fn. Messages
// that do not decode are logged and skipped.
func Subscribe(conn SubscribeConn, prefix string, log zerolog.Logger, fn func(subject string, r session.Result)) (*nats.Subscription, error) {
	if prefix == "" {
		return nil, ErrNoPrefix
	}
	subject := strings.TrimSuffix(prefix, ".") + ".>"

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var r session.Result
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("undecodable result")
			return
		}
		fn(msg.Subject, r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
