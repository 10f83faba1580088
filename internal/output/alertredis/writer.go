package alertredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"clawav/internal/logger"
	"clawav/pkg/models"
)

// Config configures the Redis alert list.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// MaxLen bounds the list; older entries are trimmed. Zero keeps everything.
	MaxLen  int64
	Timeout time.Duration
}

// Writer pushes alerts onto a bounded Redis list for other consumers on the host.
type Writer struct {
	client  redis.Cmdable
	closer  func() error
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewWriter connects to Redis and verifies it is reachable.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis alert output: %w", err)
	}

	w := newWriter(client, cfg)
	w.closer = client.Close
	logger.Infof("Alert redis writer initialized: %s/%s", cfg.Addr, w.key)
	return w, nil
}

func newWriter(client redis.Cmdable, cfg Config) *Writer {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = "clawav:alerts"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{client: client, key: key, maxLen: cfg.MaxLen, timeout: timeout}
}

// WriteAlerts appends the batch and trims the list in one pipeline.
func (w *Writer) WriteAlerts(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(alerts))
	for i := range alerts {
		b, err := json.Marshal(&alerts[i])
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		values = append(values, b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	pipe := w.client.Pipeline()
	pipe.RPush(ctx, w.key, values...)
	if w.maxLen > 0 {
		pipe.LTrim(ctx, w.key, -w.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis alert push failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer()
}
