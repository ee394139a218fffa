package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI            string
	Database       string
	AppName        string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	// PoolMonitor, when set, receives connection pool events.
	PoolMonitor *event.PoolMonitor
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "carelink",
		AppName:        "carelink-auth",
		MaxPoolSize:    50,
		MinPoolSize:    0,
		ConnectTimeout: 10 * time.Second,
	}
}

func (c *MongoConfig) clientOptions() *options.ClientOptionsBuilder {
	opts := options.Client().
		ApplyURI(c.URI).
		SetAppName(c.AppName).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetConnectTimeout(c.ConnectTimeout).
		SetServerSelectionTimeout(c.ConnectTimeout)
	if c.PoolMonitor != nil {
		opts.SetPoolMonitor(c.PoolMonitor)
	}
	return opts
}

// NewMongoClient creates a client and pings the primary with bounded retry
// (3 attempts, 1s/2s/4s backoff with jitter). logger may be nil.
func NewMongoClient(ctx context.Context, cfg *MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("connect to mongo: empty URI")
	}

	var client *mongo.Client
	err := newRetrier(logger).do(ctx, "connect to mongo", func(ctx context.Context) error {
		c, err := mongo.Connect(cfg.clientOptions())
		if err != nil {
			return err
		}

		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return fmt.Errorf("ping mongo: %w", err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// MongoHealthCheck returns a readiness checker that pings the primary.
func MongoHealthCheck(client *mongo.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}
