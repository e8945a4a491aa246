package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis publishes changes on a pub/sub channel per learner and course so
// that every server instance sees them.
type Redis struct {
	client *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedis connects to the configured server and fails when it cannot be
// reached.
func NewRedis(cfg RedisConfig, log logrus.FieldLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.WithFields(logrus.Fields{"addr": cfg.Addr, "db": cfg.DB}).Info("connected to redis notification channel")

	return &Redis{client: client, prefix: cfg.Prefix, log: log}, nil
}

func (r *Redis) Publish(ctx context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}

	if err := r.client.Publish(ctx, topic(r.prefix, c.LearnerID, c.CourseID), b).Err(); err != nil {
		return fmt.Errorf("publishing change: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server, so
// changes published afterwards are delivered to fn.
func (r *Redis) Subscribe(ctx context.Context, learnerID, courseID string, fn func(Change)) (func(), error) {
	ps := r.client.Subscribe(ctx, topic(r.prefix, learnerID, courseID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to changes: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.log.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed change")
				continue
			}
			fn(c)
		}
	}()

	unsubscribe := func() {
		ps.Close()
		<-done
	}
	return unsubscribe, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
