package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/notify"
	"netbuy-ranker/internal/observability"
)

const defaultWriteTimeout = 10 * time.Second

// BroadcasterOptions configures a Broadcaster.
type BroadcasterOptions struct {
	// Latest, if set, supplies the snapshot sent to a client right after it connects.
	Latest       func(ctx context.Context) (*domain.RankingSnapshot, error)
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Broadcaster pushes every published snapshot to all connected websocket clients.
// It implements notify.Publisher.
type Broadcaster struct {
	clients      map[*websocket.Conn]struct{}
	mu           sync.Mutex
	upgrader     websocket.Upgrader
	latest       func(ctx context.Context) (*domain.RankingSnapshot, error)
	writeTimeout time.Duration
	logger       zerolog.Logger
}

var _ notify.Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster with no clients.
func NewBroadcaster(opts BroadcasterOptions) *Broadcaster {
	wt := opts.WriteTimeout
	if wt <= 0 {
		wt = defaultWriteTimeout
	}
	return &Broadcaster{
		clients:      make(map[*websocket.Conn]struct{}),
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		latest:       opts.Latest,
		writeTimeout: wt,
		logger:       opts.Logger.With().Str("component", "websocket").Logger(),
	}
}

// PublishSnapshot sends snap to every client. Clients that fail the write are dropped.
func (b *Broadcaster) PublishSnapshot(_ context.Context, snap *domain.RankingSnapshot) error {
	msg, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.clients {
		if err := b.write(c, msg); err != nil {
			b.logger.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("dropping websocket client")
			c.Close()
			delete(b.clients, c)
		}
	}
	observability.SetWSClients(len(b.clients))
	return nil
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) write(c *websocket.Conn, msg []byte) error {
	c.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	return c.WriteMessage(websocket.TextMessage, msg)
}

// Handler returns an http.HandlerFunc to accept websocket connections.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		if b.latest != nil {
			if snap, err := b.latest(r.Context()); err == nil {
				if msg, err := json.Marshal(snap); err == nil {
					if err := b.write(conn, msg); err != nil {
						conn.Close()
						return
					}
				}
			}
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		observability.SetWSClients(len(b.clients))
		b.mu.Unlock()

		// Reads only detect the close; clients have nothing to send.
		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				observability.SetWSClients(len(b.clients))
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Close()
		delete(b.clients, c)
	}
	observability.SetWSClients(0)
}
