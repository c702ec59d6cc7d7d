package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/gomailer/mail-service/internal/auth"
	"github.com/gomailer/mail-service/internal/config"
	"github.com/gomailer/mail-service/internal/database"
	"github.com/gomailer/mail-service/pkg/middleware"
)

const mailNS = "mail.mails"

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: "0", Environment: "test", BodyLimit: 1 << 20},
		CORS:    config.CORSConfig{Origins: []string{"*"}},
		Log:     config.LogConfig{Level: "info", Format: "tiny"},
		MongoDB: config.MongoDBConfig{URI: "mongodb://127.0.0.1:1", Database: "mail", Timeout: 50 * time.Millisecond},
		MinIO:   config.MinIOConfig{URLExpiry: time.Minute},
	}
}

// connectorFunc adapts a function to database.Connector.
type connectorFunc func(ctx context.Context) (*database.Connection, error)

func (f connectorFunc) Connect(ctx context.Context) (*database.Connection, error) { return f(ctx) }

func connectorFor(conn *database.Connection) database.Connector {
	return connectorFunc(func(context.Context) (*database.Connection, error) { return conn, nil })
}

// fakeBlobs is a blob store that only records bucket creation.
type fakeBlobs struct {
	ensured bool
	err     error
}

func (f *fakeBlobs) EnsureBucket(context.Context) error {
	f.ensured = f.err == nil
	return f.err
}

func (f *fakeBlobs) Upload(context.Context, string, io.Reader, int64, string) error { return nil }

func (f *fakeBlobs) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "http://blobs.local/x", nil
}

func (f *fakeBlobs) Remove(context.Context, string) error { return nil }

func serve(h http.Handler, method, path string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_ConnectorErrorIsReturnedUnchanged(t *testing.T) {
	boom := errors.New("no route to database")
	a, err := New(context.Background(), testConfig(), Deps{
		Connector: connectorFunc(func(context.Context) (*database.Connection, error) { return nil, boom }),
	})
	require.Nil(t, a)
	require.Same(t, boom, err)
}

func TestNew_RequiresConnector(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Deps{})
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("lists routes outside production", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		var out bytes.Buffer

		a, err := New(context.Background(), testConfig(), Deps{
			Connector: connectorFor(database.NewConnection(mt.Client, "mail")),
			Out:       &out,
		})
		require.NoError(mt, err)
		require.NotNil(mt, a.Handler())
		require.Equal(mt, "createIndexes", mt.GetStartedEvent().CommandName)
		require.Contains(mt, out.String(), "/v1/mail/:id/attachments/:name")
		require.Contains(mt, out.String(), "/health")
	})

	mt.Run("silent in production", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		cfg := testConfig()
		cfg.Server.Environment = "production"
		var out bytes.Buffer

		_, err := New(context.Background(), cfg, Deps{
			Connector: connectorFor(database.NewConnection(mt.Client, "mail")),
			Out:       &out,
		})
		require.NoError(mt, err)
		require.Empty(mt, out.String())
	})

	mt.Run("ensures the attachment bucket", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		blobs := &fakeBlobs{}

		a, err := New(context.Background(), testConfig(), Deps{
			Connector: connectorFor(database.NewConnection(mt.Client, "mail")),
			Blobs:     blobs,
			Out:       io.Discard,
		})
		require.NoError(mt, err)
		require.True(mt, blobs.ensured)

		// with attachments enabled the id is validated instead of answering 501
		w := serve(a.Handler(), http.MethodGet, "/v1/mail/not-an-id/attachments/a.txt", nil)
		require.Equal(mt, http.StatusBadRequest, w.Code)
	})

	mt.Run("bucket failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := New(context.Background(), testConfig(), Deps{
			Connector: connectorFor(database.NewConnection(mt.Client, "mail")),
			Blobs:     &fakeBlobs{err: errors.New("access denied")},
			Out:       io.Discard,
		})
		require.ErrorContains(mt, err, "access denied")
	})

	mt.Run("index creation failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized", Name: "Unauthorized"}))

		_, err := New(context.Background(), testConfig(), Deps{
			Connector: connectorFor(database.NewConnection(mt.Client, "mail")),
			Out:       io.Discard,
		})
		require.ErrorContains(mt, err, "create mail indexes")
	})
}

func TestHandler(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	newApp := func(mt *mtest.T, rdb *redis.Client) *App {
		a, err := build(testConfig(), Deps{Redis: rdb}, database.NewConnection(mt.Client, "mail"))
		require.NoError(mt, err)
		return a
	}

	mt.Run("health carries the middleware headers", func(mt *mtest.T) {
		w := serve(newApp(mt, nil).Handler(), http.MethodGet, "/health", nil, "Origin", "https://app.example.com")

		require.Equal(mt, http.StatusOK, w.Code)
		require.Equal(mt, "healthy", w.Body.String())
		require.NotEmpty(mt, w.Header().Get(middleware.RequestIDHeader))
		require.Equal(mt, "*", w.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(mt, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	mt.Run("preflight", func(mt *mtest.T) {
		w := serve(newApp(mt, nil).Handler(), http.MethodOptions, "/v1/mail", nil,
			"Origin", "https://app.example.com", "Access-Control-Request-Method", "POST")
		require.Equal(mt, http.StatusNoContent, w.Code)
	})

	mt.Run("ready", func(mt *mtest.T) {
		m, err := mr.Run()
		require.NoError(mt, err)
		defer m.Close()
		_, err = m.Lpush("mail:outbox", "pending")
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		w := serve(newApp(mt, redis.NewClient(&redis.Options{Addr: m.Addr()})).Handler(), http.MethodGet, "/ready", nil)
		require.Equal(mt, http.StatusOK, w.Code)

		var body struct {
			Status string          `json:"status"`
			Deps   map[string]bool `json:"deps"`
			Outbox int64           `json:"outbox"`
		}
		require.NoError(mt, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(mt, "ready", body.Status)
		require.Equal(mt, map[string]bool{"mongo": true, "redis": true}, body.Deps)
		require.Equal(mt, int64(1), body.Outbox)
	})

	mt.Run("not ready when mongo fails", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11600, Message: "shutting down", Name: "InterruptedAtShutdown"}))

		w := serve(newApp(mt, nil).Handler(), http.MethodGet, "/ready", nil)
		require.Equal(mt, http.StatusServiceUnavailable, w.Code)
		require.Contains(mt, w.Body.String(), `"not_ready"`)
		require.Contains(mt, w.Body.String(), `"mongo":false`)
		require.Contains(mt, w.Body.String(), `"outbox":0`)
	})

	mt.Run("not ready when redis is down", func(mt *mtest.T) {
		m, err := mr.Run()
		require.NoError(mt, err)
		rdb := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
		m.Close()
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		w := serve(newApp(mt, rdb).Handler(), http.MethodGet, "/ready", nil)
		require.Equal(mt, http.StatusServiceUnavailable, w.Code)
		require.Contains(mt, w.Body.String(), `"redis":false`)
	})

	mt.Run("create mail and enqueue", func(mt *mtest.T) {
		m, err := mr.Run()
		require.NoError(mt, err)
		defer m.Close()
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		body := `{"from":"ops@example.com","to":["ana@example.com"],"subject":"Welcome","text":"hi"}`
		w := serve(newApp(mt, redis.NewClient(&redis.Options{Addr: m.Addr()})).Handler(),
			http.MethodPost, "/v1/mail", strings.NewReader(body), "Content-Type", "application/json")
		require.Equal(mt, http.StatusCreated, w.Code, w.Body.String())

		var created struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(mt, json.Unmarshal(w.Body.Bytes(), &created))
		require.Equal(mt, "queued", created.Status)
		require.Equal(mt, "/v1/mail/"+created.ID, w.Header().Get("Location"))

		queued, err := m.List("mail:outbox")
		require.NoError(mt, err)
		require.Equal(mt, []string{created.ID}, queued)
	})

	mt.Run("list with pagination", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mailNS, mtest.FirstBatch, bson.D{{Key: "subject", Value: "b"}}),
			mtest.CreateCursorResponse(0, mailNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
		)

		w := serve(newApp(mt, nil).Handler(), http.MethodGet, "/v1/mail?page=2&limit=1&sort=subject&page=3", nil)
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		require.JSONEq(mt, `3`, string(mustField(mt, w.Body.Bytes(), "total")))
		// repeated page collapses to the last value
		require.JSONEq(mt, `3`, string(mustField(mt, w.Body.Bytes(), "page")))
		require.Equal(mt, int64(2), mt.GetStartedEvent().Command.Lookup("skip").AsInt64())
	})

	mt.Run("malformed JSON is rejected before the handler", func(mt *mtest.T) {
		w := serve(newApp(mt, nil).Handler(), http.MethodPost, "/v1/mail", strings.NewReader(`{"to":`), "Content-Type", "application/json")
		require.Equal(mt, http.StatusBadRequest, w.Code)
		require.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("docs are compressed", func(mt *mtest.T) {
		w := serve(newApp(mt, nil).Handler(), http.MethodGet, "/swagger/doc.json", nil, "Accept-Encoding", "gzip")
		require.Equal(mt, http.StatusOK, w.Code)
		require.Equal(mt, "gzip", w.Header().Get("Content-Encoding"))
	})

	mt.Run("metrics", func(mt *mtest.T) {
		a := newApp(mt, nil)
		serve(a.Handler(), http.MethodGet, "/health", nil)

		w := serve(a.Handler(), http.MethodGet, "/metrics", nil)
		require.Equal(mt, http.StatusOK, w.Code)
		require.Contains(mt, w.Body.String(), `mail_service_http_requests_total{method="GET",route="/health",status="200"}`)
		require.Contains(mt, w.Body.String(), "go_goroutines")
	})
}

func mustField(t require.TestingT, body []byte, name string) json.RawMessage {
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return m[name]
}

func TestHandler_Auth(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	const secret = "app-test-secret-0123456789abcdef"

	mt.Run("mail API requires a bearer token", func(mt *mtest.T) {
		ver, err := auth.NewJWTVerifier(secret, "")
		require.NoError(mt, err)
		a, err := build(testConfig(), Deps{Verifier: ver}, database.NewConnection(mt.Client, "mail"))
		require.NoError(mt, err)
		h := a.Handler()

		require.Equal(mt, http.StatusUnauthorized, serve(h, http.MethodGet, "/v1/mail", nil).Code)
		require.Equal(mt, http.StatusOK, serve(h, http.MethodGet, "/health", nil).Code)

		token, err := auth.IssueToken(secret, "", "user-1", time.Minute)
		require.NoError(mt, err)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mailNS, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, mailNS, mtest.FirstBatch),
		)
		w := serve(h, http.MethodGet, "/v1/mail", nil, "Authorization", "Bearer "+token)
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		require.JSONEq(mt, `{"items":[],"page":1,"limit":10,"total":0}`, w.Body.String())
	})
}

func TestHandler_RateLimit(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("limits the mail API only", func(mt *mtest.T) {
		cfg := testConfig()
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
		a, err := build(cfg, Deps{}, database.NewConnection(mt.Client, "mail"))
		require.NoError(mt, err)
		h := a.Handler()

		// an invalid id is rejected without a database round trip
		require.Equal(mt, http.StatusBadRequest, serve(h, http.MethodGet, "/v1/mail/not-an-id", nil).Code)
		require.Equal(mt, http.StatusTooManyRequests, serve(h, http.MethodGet, "/v1/mail/not-an-id", nil).Code)
		require.Equal(mt, http.StatusOK, serve(h, http.MethodGet, "/health", nil).Code)
	})
}

func TestServe(t *testing.T) {
	conn, err := database.LazyConnection(testConfig().MongoDB)
	require.NoError(t, err)
	a, err := build(testConfig(), Deps{}, conn)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListRoutes(t *testing.T) {
	routes, err := ListRoutes(testConfig(), Deps{})
	require.NoError(t, err)

	got := map[string]bool{}
	for _, r := range routes {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health", "GET /ready", "GET /metrics", "GET /swagger/doc.json",
		"GET /v1/mail", "POST /v1/mail", "DELETE /v1/mail", "GET /v1/mail/stats",
		"GET /v1/mail/:id", "PATCH /v1/mail/:id", "DELETE /v1/mail/:id",
		"POST /v1/mail/:id/attachments", "GET /v1/mail/:id/attachments/:name",
	} {
		require.True(t, got[want], want)
	}
}
