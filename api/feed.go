package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// FEED - Websocket summary push
// =============================================================================

const feedWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the router for plain HTTP only
	},
}

// FeedMessage is what each websocket client receives.
type FeedMessage struct {
	Event string          `json:"event"`
	Data  SummaryResponse `json:"data"`
}

// Feed pushes the summary of each client's window whenever the view
// ingests a new snapshot.
type Feed struct {
	view *ledger.View
	now  func() time.Time

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn   *websocket.Conn
	window ledger.Window
	mu     sync.Mutex // one writer at a time
}

func NewFeed(view *ledger.View, now func() time.Time) *Feed {
	f := &Feed{
		view:    view,
		now:     now,
		clients: make(map[*feedClient]struct{}),
	}
	view.OnChange(f.Broadcast)
	return f
}

// ServeHTTP upgrades the connection. ?window= picks the summary window.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	window, err := ledger.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{conn: conn, window: window}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	zap.S().Debugw("feed client connected", "window", window, "remote", r.RemoteAddr)

	if err := f.send(c); err != nil {
		f.drop(c)
		return
	}

	// Reads only detect the close; clients never send anything useful.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			f.drop(c)
			return
		}
	}
}

// Broadcast sends a fresh summary to every client.
func (f *Feed) Broadcast() {
	f.mu.Lock()
	clients := make([]*feedClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()

	for _, c := range clients {
		if err := f.send(c); err != nil {
			zap.S().Debugw("feed client dropped", "error", err)
			f.drop(c)
		}
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) send(c *feedClient) error {
	msg := FeedMessage{Event: "summary", Data: toSummary(f.view.Report(c.window, f.now()))}
	if err := f.view.LastError(); err != nil {
		msg.Data.Stale = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (f *Feed) drop(c *feedClient) {
	f.mu.Lock()
	_, ok := f.clients[c]
	delete(f.clients, c)
	f.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
