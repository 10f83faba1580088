package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	redis "github.com/redis/go-redis/v9"

	"clawav/internal/detect"
	"clawav/internal/logger"
	"clawav/pkg/models"
)

// RedisQueueConfig configures the Redis list event source.
type RedisQueueConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
}

// RedisQueueSource pops JSON-encoded normalized events from a Redis list and hands them to
// the detectors. Other agents on the host push events onto the list.
type RedisQueueSource struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
	errorBackoff time.Duration
	publisher    Publisher
	sink         EventSink
	health       healthState
}

// NewRedisQueueSource creates a Redis list source.
func NewRedisQueueSource(cfg RedisQueueConfig, publisher Publisher, sink EventSink) (*RedisQueueSource, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, errors.New("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisQueueSource{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
		errorBackoff: cfg.ErrorBackoff,
		publisher:    publisher,
		sink:         sink,
	}, nil
}

func (s *RedisQueueSource) ID() string { return "redis-queue" }

func (s *RedisQueueSource) SourceType() string { return "redis" }

func (s *RedisQueueSource) Health() detect.Health { return s.health.get() }

// Start checks connectivity and then consumes the list in the background.
func (s *RedisQueueSource) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		s.health.set(detect.Failed)
		return errors.Wrap(err, "ping redis queue")
	}

	logger.Infof("Consuming events from redis list %s", s.key)
	s.health.set(detect.Healthy)
	go s.readLoop(ctx)
	return nil
}

// Close closes the client.
func (s *RedisQueueSource) Close() error {
	return s.client.Close()
}

func (s *RedisQueueSource) readLoop(ctx context.Context) {
	for {
		payload, err := s.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop redis message: %v", err)
			s.health.set(detect.Degraded)
			s.publisher.Publish(models.NewAlert(models.Warning, "redis", fmt.Sprintf("Error reading redis queue %s: %v", s.key, err)))
			if !sleepCtx(ctx, s.errorBackoff) {
				return
			}
			continue
		}
		if payload == nil {
			continue
		}
		s.health.set(detect.Healthy)

		event, err := decodeEvent(payload)
		if err != nil {
			logger.Warnf("Failed to decode queued event: %v", err)
			continue
		}
		if s.sink != nil {
			s.sink.Dispatch(event)
		}
	}
}

func (s *RedisQueueSource) pop(ctx context.Context) ([]byte, error) {
	res, err := s.client.BLPop(ctx, s.blockTimeout, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func decodeEvent(payload []byte) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return models.Event{}, err
	}
	if event.Source == "" {
		event.Source = "redis"
	}
	if event.Fields == nil {
		event.Fields = map[string]string{}
	}
	return event, nil
}
