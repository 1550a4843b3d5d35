// Package dashboard serves a read-only HTTP/WebSocket view of the broker's
// live state: peer and channel counts, and a short history of recent
// evictions. It never accepts a write from a client and never touches the
// routing hot path directly — it only ever calls Router.Snapshot.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/p2p"
)

// Eviction records one subscriber eviction for the recent-activity feed.
type Eviction struct {
	Channel string    `json:"channel"`
	At      time.Time `json:"at"`
}

// Dashboard snapshots a Router on a timer and serves the result as JSON and
// over a WebSocket push feed.
type Dashboard struct {
	router *p2p.Router
	logger log.Logger

	mu         deadlock.Mutex // guards evictions; go-deadlock catches any future lock-ordering mistake here
	evictions  *lru.Cache[int, Eviction]
	evictionSeq int

	upgrader websocket.Upgrader
}

// New constructs a Dashboard backed by router. recentEvictions bounds how
// many eviction events the /status endpoint and the /status/ws push feed
// retain.
func New(router *p2p.Router, logger log.Logger, recentEvictions int) *Dashboard {
	if recentEvictions <= 0 {
		recentEvictions = 64
	}
	cache, err := lru.New[int, Eviction](recentEvictions)
	if err != nil {
		// Only returns an error for a non-positive size, which is excluded
		// above.
		panic(err)
	}
	return &Dashboard{
		router:    router,
		logger:    logger,
		evictions: cache,
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// RecordEviction appends an eviction event to the recent-activity ring. It
// is called from Router.Forward's eviction notifier (wired in cmd/chanbusd)
// after the actor's do() call has returned, so a slow dashboard mutex never
// delays the next routed message.
func (d *Dashboard) RecordEviction(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictionSeq++
	d.evictions.Add(d.evictionSeq, Eviction{Channel: channel, At: time.Now()})
}

func (d *Dashboard) recentEvictions() []Eviction {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := d.evictions.Keys()
	out := make([]Eviction, 0, len(keys))
	for _, k := range keys {
		if v, ok := d.evictions.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// statusView is the JSON shape served by /status and pushed over /status/ws.
type statusView struct {
	Peers     int            `json:"peers"`
	Channels  map[string]int `json:"channels"`
	Evictions []Eviction     `json:"recent_evictions"`
}

func (d *Dashboard) snapshot() statusView {
	snap := d.router.Snapshot()
	channels := make(map[string]int, len(snap.Channels))
	for id, n := range snap.Channels {
		channels[string(id)] = n
	}
	return statusView{Peers: snap.Peers, Channels: channels, Evictions: d.recentEvictions()}
}

func (d *Dashboard) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.snapshot())
}

func (d *Dashboard) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Debug("dashboard: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(d.snapshot()); err != nil {
			d.logger.Debug("dashboard: websocket write failed, closing", "error", err)
			return
		}
	}
}

// Handler returns the dashboard's http.Handler, with permissive CORS since
// this is a read-only diagnostic surface intended for local tooling.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", d.handleStatus)
	mux.HandleFunc("/status/ws", d.handleWS)
	return cors.AllowAll().Handler(mux)
}
