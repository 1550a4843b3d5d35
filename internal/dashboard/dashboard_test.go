package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chanbus/chanbus/internal/log"
	"github.com/chanbus/chanbus/internal/p2p"
)

func TestStatusEndpointReflectsRouterState(t *testing.T) {
	router := p2p.NewRouter(log.Nop(), nil)
	defer router.Close()

	router.Attach("room", "a", p2p.NewPeerHandle("a", 4))
	router.PeerAdd("a", p2p.NewPeerHandle("a", 4))

	d := New(router, log.Nop(), 8)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var view statusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Channels["room"] != 1 {
		t.Fatalf("channels = %+v, want room:1", view.Channels)
	}
}

func TestRecordEvictionAppearsInStatus(t *testing.T) {
	router := p2p.NewRouter(log.Nop(), nil)
	defer router.Close()

	d := New(router, log.Nop(), 2)
	d.RecordEviction("room")
	d.RecordEviction("other")

	view := d.snapshot()
	if len(view.Evictions) != 2 {
		t.Fatalf("got %d evictions, want 2", len(view.Evictions))
	}
}

func TestRecordEvictionBoundedByCapacity(t *testing.T) {
	router := p2p.NewRouter(log.Nop(), nil)
	defer router.Close()

	d := New(router, log.Nop(), 2)
	d.RecordEviction("a")
	d.RecordEviction("b")
	d.RecordEviction("c")

	view := d.snapshot()
	if len(view.Evictions) != 2 {
		t.Fatalf("got %d evictions, want capacity-bounded 2", len(view.Evictions))
	}
}
