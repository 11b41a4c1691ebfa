package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const (
	defaultConnectAttempts = 5
	defaultConnectTimeout  = 5 * time.Second
	defaultStreamName      = "STORE_PLATFORM"
)

// Publisher announces store lifecycle changes.
type Publisher interface {
	PublishStore(ctx context.Context, st model.Store) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// PublishStore implements Publisher.
func (NoopPublisher) PublishStore(context.Context, model.Store) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL             string
	Name            string
	SubjectPrefix   string
	Stream          string
	ConnectAttempts uint
	ConnectTimeout  time.Duration
}

// NATSPublisher publishes lifecycle events to a JetStream stream covering
// <prefix>.>.
type NATSPublisher struct {
	conn   *natsgo.Conn
	js     natsgo.JetStreamContext
	prefix string
	log    zerolog.Logger
}

// NewNATSPublisher connects to NATS, retrying with exponential backoff, and
// ensures the lifecycle stream exists.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, logger zerolog.Logger) (*NATSPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if prefix == "" {
		return nil, errors.New("nats subject prefix is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = defaultStreamName
	}
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	log := logger.With().Str("component", "events").Logger()

	conn, err := backoff.Retry(ctx, func() (*natsgo.Conn, error) {
		conn, err := natsgo.Connect(url, natsgo.Name(cfg.Name), natsgo.Timeout(timeout))
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("nats connect failed, retrying")
			return nil, err
		}
		return conn, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(attempts))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, natsgo.ErrStreamNotFound) {
			conn.Close()
			return nil, fmt.Errorf("looking up stream %q: %w", stream, err)
		}
		if _, err := js.AddStream(&natsgo.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
		}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating stream %q: %w", stream, err)
		}
	}

	log.Info().Str("url", url).Str("stream", stream).Str("subject_prefix", prefix).Msg("nats publisher ready")

	return &NATSPublisher{
		conn:   conn,
		js:     js,
		prefix: prefix,
		log:    log,
	}, nil
}

// PublishStore publishes the lifecycle envelope for st.
func (p *NATSPublisher) PublishStore(ctx context.Context, st model.Store) error {
	event, err := NewStoreLifecycleEvent(st)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	subject := Subject(p.prefix, st.Status)
	if _, err := p.js.Publish(subject, payload, natsgo.Context(ctx), natsgo.MsgId(event.ID)); err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	p.log.Debug().Str("subject", subject).Str("store_id", st.ID).Str("event_id", event.ID).Msg("published lifecycle event")
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
