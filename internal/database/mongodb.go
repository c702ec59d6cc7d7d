package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gomailer/mail-service/internal/config"
	"github.com/gomailer/mail-service/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Connection owns the process-wide client and the database handle services
// are built from. It is created once at startup and never reassigned.
type Connection struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewConnection wraps an already connected client.
func NewConnection(client *mongo.Client, database string) *Connection {
	return &Connection{Client: client, DB: client.Database(database)}
}

// Collection returns a handle for the named collection.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.DB.Collection(name)
}

// Ping is the readiness signal for dependents.
func (c *Connection) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}

// Connector establishes the database connection for the application shell.
type Connector interface {
	Connect(ctx context.Context) (*Connection, error)
}

// MongoConnector connects with retry/backoff to tolerate startup races with
// the database container. The last error is returned once attempts run out.
type MongoConnector struct {
	Config  config.MongoDBConfig
	Backoff time.Duration
}

func (m MongoConnector) Connect(ctx context.Context) (*Connection, error) {
	attempts := m.Config.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := m.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := ConnectMongo(ctx, m.Config.URI, m.Config.Timeout)
		if err == nil {
			logger.Infof("connected to MongoDB database %q", m.Config.Database)
			return NewConnection(client, m.Config.Database), nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, attempts, err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", attempts, lastErr)
}

// LazyConnection returns a connection whose client has not talked to the
// server yet; the driver dials on first use. The CLI uses it to build the
// router for route listing without a reachable database.
func LazyConnection(cfg config.MongoDBConfig) (*Connection, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return NewConnection(client, cfg.Database), nil
}
