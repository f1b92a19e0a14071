package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
)

const (
	// DefaultSubject is the subject snapshots are published on.
	DefaultSubject = "rankings.snapshots"

	// StreamRetention is how long the stream keeps snapshots.
	StreamRetention = 7 * 24 * time.Hour
)

// NATSOptions configures a NATSPublisher.
type NATSOptions struct {
	URL     string
	Subject string // default DefaultSubject
	Stream  string // JetStream stream name; empty publishes on core NATS
	Logger  zerolog.Logger
}

// NATSPublisher publishes snapshots as JSON on a NATS subject, optionally through JetStream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to NATS and, when a stream is configured, ensures it exists.
func NewNATSPublisher(opts NATSOptions) (*NATSPublisher, error) {
	subject := opts.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name("netbuy-ranker"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := &NATSPublisher{
		nc:      nc,
		subject: subject,
		logger:  opts.Logger.With().Str("component", "nats").Logger(),
	}

	if opts.Stream != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		p.js = js
		if err := p.ensureStream(opts.Stream); err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", opts.Stream, err)
		}
	}

	p.logger.Info().Str("url", opts.URL).Str("subject", subject).Str("stream", opts.Stream).Msg("NATS publisher initialized")
	return p, nil
}

func (p *NATSPublisher) ensureStream(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, name); err == nil {
		return nil
	}

	p.logger.Info().Str("stream", name).Msg("creating JetStream stream")
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "Net purchase ranking snapshots",
		Subjects:    []string{p.subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	return err
}

// PublishSnapshot publishes snap as JSON.
func (p *NATSPublisher) PublishSnapshot(ctx context.Context, snap *domain.RankingSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if p.js != nil {
		if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
			return fmt.Errorf("publish snapshot to stream: %w", err)
		}
	} else if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	p.logger.Debug().Str("subject", p.subject).Str("snapshot_id", snap.ID).Msg("snapshot published")
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

var _ Publisher = (*NATSPublisher)(nil)
