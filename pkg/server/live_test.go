package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lkarlslund/redflag/pkg/event"
)

func TestLiveFeedDeliversIngestedEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitForSubscriber(t, srv)

	postResp, err := http.Post(ts.URL+"/api/events", "application/json",
		strings.NewReader(`{"timestamp":123456,"name":"live-check","user":"alice"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", postResp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e event.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Name != "live-check" || e.Timestamp != 123456 {
		t.Fatalf("unexpected live event %+v", e)
	}
	if e.UUID == "" {
		t.Fatal("expected uuid on live event")
	}
}

func waitForSubscriber(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.hub.mu.Lock()
		n := len(srv.hub.clients)
		srv.hub.mu.Unlock()
		if n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveHubDropsSlowSubscribers(t *testing.T) {
	hub := newLiveHub()
	c := &liveClient{ch: make(chan []byte, 1)}
	if !hub.register(c) {
		t.Fatal("register failed")
	}
	hub.broadcast([]byte("one"))
	hub.broadcast([]byte("two"))
	if got := len(c.ch); got != 1 {
		t.Fatalf("expected full buffer to drop second message, got %d buffered", got)
	}
	hub.unregister(c)
	if msg, ok := <-c.ch; !ok || string(msg) != "one" {
		t.Fatalf("expected buffered message one, got %q ok=%v", msg, ok)
	}
	if _, ok := <-c.ch; ok {
		t.Fatal("expected channel closed after unregister")
	}

	hub.broadcast([]byte("three"))
	hub.closeAll()
	if hub.register(&liveClient{ch: make(chan []byte, 1)}) {
		t.Fatal("expected register to fail after closeAll")
	}
}
