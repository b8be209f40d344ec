package status

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/torrents3/torrents3/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("", logging.New(false))

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatusJSON).Methods("GET")
	router.HandleFunc("/status/ws", s.handleWebSocket).Methods("GET")
	ts := httptest.NewServer(router)

	go s.pump()
	t.Cleanup(func() {
		ts.Close()
	})
	return s, ts
}

func TestStatusJSONServesLatestSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	s.Publish <- Snapshot{Requested: 3, InFlight: 1, Completed: 2, Errors: 0}
	time.Sleep(20 * time.Millisecond)

	resp, err := ts.Client().Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var got Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Requested != 3 || got.Completed != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestWebSocketURLIsRouted(t *testing.T) {
	_, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status/ws"
	if !strings.HasSuffix(wsURL, "/status/ws") {
		t.Fatalf("unexpected websocket URL: %s", wsURL)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	var got Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
}
