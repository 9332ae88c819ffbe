package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSClientConnectionLifecycle(t *testing.T) {
	srv := wsEchoServer(t)
	url := strings.Replace(srv.URL, "http://", "ws://", 1)

	c := NewWSClient("", url, []string{"BTCUSDT"}, time.Millisecond, time.Minute)
	if c.IsConnected() {
		t.Fatal("connected before Connect")
	}
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("Subscribe before Connect should fail")
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("not connected after Connect")
	}
	if err := c.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("still connected after Close")
	}
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("Subscribe after Close should fail")
	}
}

func TestWSClientStatusConcurrentWithClose(t *testing.T) {
	srv := wsEchoServer(t)
	url := strings.Replace(srv.URL, "http://", "ws://", 1)

	c := NewWSClient("", url, nil, time.Millisecond, time.Minute)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.IsConnected()
			}
		}()
	}
	_ = c.Close()
	wg.Wait()

	if c.IsConnected() {
		t.Fatal("still connected after Close")
	}
}
