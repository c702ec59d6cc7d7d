package database

import (
	"context"
	"testing"
	"time"

	"github.com/gomailer/mail-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestConnectMongo_InvalidURI(t *testing.T) {
	_, err := ConnectMongo(context.Background(), "not-a-mongo-uri", time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mongo connect")
}

func TestMongoConnector_GivesUpAfterAttempts(t *testing.T) {
	c := MongoConnector{
		Config:  config.MongoDBConfig{URI: "not-a-mongo-uri", Database: "mail", Timeout: time.Second, ConnectAttempts: 2},
		Backoff: time.Millisecond,
	}
	conn, err := c.Connect(context.Background())
	require.Nil(t, conn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
}

func TestMongoConnector_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := MongoConnector{
		Config:  config.MongoDBConfig{URI: "not-a-mongo-uri", Timeout: time.Second, ConnectAttempts: 3},
		Backoff: time.Hour,
	}
	_, err := c.Connect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLazyConnection(t *testing.T) {
	// nothing listens on port 1; building the connection must not dial
	conn, err := LazyConnection(config.MongoDBConfig{URI: "mongodb://127.0.0.1:1", Database: "mail", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, "mail", conn.DB.Name())
	require.Equal(t, "mails", conn.Collection("mails").Name())

	require.Error(t, conn.Ping(context.Background()))
	require.NoError(t, conn.Close(context.Background()))
}

func TestLazyConnection_InvalidURI(t *testing.T) {
	_, err := LazyConnection(config.MongoDBConfig{URI: "not-a-mongo-uri"})
	require.ErrorContains(t, err, "mongo connect")
}
