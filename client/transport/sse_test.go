package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, events string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, events)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSSEConn_RecvParsesEvents(t *testing.T) {
	events := "data: {\"type\":\"ai\"}\n\n" +
		": heartbeat comment\n" +
		"event: message\n" +
		"data: line one\n" +
		"data: line two\n\n"
	srv := sseServer(t, events)

	conn, err := DialSSE(nil, srv.URL, srv.URL, "")(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	first, err := conn.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ai"}`, string(first))

	second, err := conn.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(second))

	_, err = conn.Recv(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDialSSE_SetsBearerToken(t *testing.T) {
	var mu sync.Mutex
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	conn, err := DialSSE(nil, srv.URL, srv.URL, "tok-123")(context.Background())
	require.NoError(t, err)
	conn.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer tok-123", auth)
}

func TestDialSSE_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := DialSSE(nil, srv.URL, srv.URL, "")(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSSEConn_SendPosts(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			body = b
			mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	conn, err := DialSSE(nil, srv.URL, srv.URL, "")(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), []byte(`{"content":"hi"}`)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"content":"hi"}`, string(body))
}

func TestSupervisor_CancelStopsIdleStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	s := NewSupervisor(DialSSE(nil, srv.URL, srv.URL, ""), fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.currentConn() != nil }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor still running after cancellation")
	}
}

func TestSSEConn_SendRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	conn, err := DialSSE(nil, srv.URL, srv.URL, "")(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
