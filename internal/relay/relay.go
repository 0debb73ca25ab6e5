// Package relay mirrors room events onto NATS subjects so external
// consumers (recording, analytics, other instances) can observe state
// changes without holding a WebSocket connection.
package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectPrefix is the subject namespace events are published under;
// each set gets its own subject below it.
const SubjectPrefix = "slidesync.events"

// Publisher publishes room events to NATS. Publish failures are logged
// and never propagated; the relay is strictly best-effort.
type Publisher struct {
	nc *nats.Conn
}

// New connects to the NATS server at url.
func New(url string) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Msg("event relay connected")
	return &Publisher{nc: nc}, nil
}

// Publish mirrors one room event to the set's subject.
func (p *Publisher) Publish(setID string, data []byte) {
	subject := SubjectPrefix + "." + setID
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to relay event")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
