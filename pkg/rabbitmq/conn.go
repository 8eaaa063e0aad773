package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"callcenter-platform/pkg/logger"
)

type Config struct {
	Host string
	Port int
	User string
	Pass string

	// MaxTries bounds the dial attempts; zero means 5.
	MaxTries    uint
	MaxInterval time.Duration
}

func (c Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Pass),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/",
	}
	return u.String()
}

// Dial connects with exponential backoff. The connection is closed when ctx
// is done.
func Dial(ctx context.Context, cfg Config) (*amqp.Connection, error) {
	log := logger.From(ctx)
	addr := cfg.URL()

	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(addr)
		if err != nil {
			log.Warn("rabbitmq dial failed, retrying", "host", cfg.Host, "err", err)
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = cfg.MaxInterval
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = 10 * time.Second
	}
	tries := cfg.MaxTries
	if tries == 0 {
		tries = 5
	}
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	log.Info("rabbitmq connected", "host", cfg.Host)

	go func() {
		<-ctx.Done()
		if err := conn.Close(); err != nil && !conn.IsClosed() {
			log.Error("rabbitmq close failed", "err", err)
		}
	}()
	return conn, nil
}
