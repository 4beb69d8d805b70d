package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/apresai/papercast/internal/config"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	prefix string
	log    *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("papercast"),
		nats.Timeout(cfg.ConnectTimeout()),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	log.InfoContext(ctx, "connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, js: js, prefix: cfg.SubjectPrefix, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// StatusEvent is published whenever an episode changes state.
type StatusEvent struct {
	EpisodeID string    `json:"episode_id"`
	Status    string    `json:"status"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// StatusSubject is the subject an episode's status events go to.
func (c *Client) StatusSubject(episodeID string) string {
	return statusSubject(c.prefix, episodeID)
}

func statusSubject(prefix, episodeID string) string {
	if prefix == "" {
		prefix = "papercast"
	}
	return prefix + ".episodes." + episodeID + ".status"
}

// PublishStatus fires a core NATS message; delivery is best effort.
func (c *Client) PublishStatus(ctx context.Context, ev StatusEvent) {
	if c == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.WarnContext(ctx, "marshal status event", "error", err)
		return
	}
	if err := c.conn.Publish(c.StatusSubject(ev.EpisodeID), data); err != nil {
		c.log.WarnContext(ctx, "publish status event", "episode_id", ev.EpisodeID, "error", err)
	}
}
