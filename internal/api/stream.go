package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/cytophage/internal/engine"
)

const maxStreamConns = 16

// Organism flag bits in stream frames.
const (
	flagLeader = 1 << iota
	flagSuccessor
	flagOrphan
	flagAggressive
)

// streamFrame is the compact per-tick view pushed to websocket clients.
type streamFrame struct {
	Tick       uint64           `json:"tick"`
	Population int              `json:"population"`
	Clans      []streamClan     `json:"clans"`
	Organisms  []streamOrganism `json:"organisms"`
	Food       [][2]float32     `json:"food"`
}

type streamOrganism struct {
	ID    uint64  `json:"id"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	R     float32 `json:"r"`
	Group uint64  `json:"g"`
	Flags uint8   `json:"f"`
}

type streamClan struct {
	Group  uint64  `json:"g"`
	Color  string  `json:"color"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Radius float32 `json:"radius"`
}

func newStreamFrame(sn *engine.Snapshot) streamFrame {
	f := streamFrame{
		Tick:       sn.Tick,
		Population: len(sn.Organisms),
		Clans:      make([]streamClan, len(sn.Clans)),
		Organisms:  make([]streamOrganism, len(sn.Organisms)),
		Food:       make([][2]float32, len(sn.Food)),
	}
	for i, c := range sn.Clans {
		f.Clans[i] = streamClan{
			Group:  uint64(c.GroupID),
			Color:  c.Color,
			X:      float32(c.LeaderX),
			Y:      float32(c.LeaderY),
			Radius: float32(c.Radius),
		}
	}
	for i, o := range sn.Organisms {
		var flags uint8
		if o.IsLeader {
			flags |= flagLeader
		}
		if o.IsSuccessor {
			flags |= flagSuccessor
		}
		if o.Orphan {
			flags |= flagOrphan
		}
		if o.Aggressive {
			flags |= flagAggressive
		}
		f.Organisms[i] = streamOrganism{
			ID:    uint64(o.ID),
			X:     float32(o.X),
			Y:     float32(o.Y),
			R:     float32(o.Radius),
			Group: uint64(o.GroupID),
			Flags: flags,
		}
	}
	for i, fd := range sn.Food {
		f.Food[i] = [2]float32{float32(fd.X), float32(fd.Y)}
	}
	return f
}

// hub fans encoded frames out to stream subscribers. Slow subscribers drop
// frames rather than stall the tick loop.
type hub struct {
	mu   sync.Mutex
	subs map[uint64]chan []byte
	next uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan []byte)}
}

func (h *hub) subscribe() (uint64, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	ch := make(chan []byte, 4)
	h.subs[h.next] = ch
	return h.next, ch
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish pushes a snapshot to every stream client. Called from the tick loop.
func (s *Server) Publish(sn *engine.Snapshot) {
	if sn == nil || s.hub.len() == 0 {
		return
	}
	b, err := json.Marshal(newStreamFrame(sn))
	if err != nil {
		slog.Error("encode stream frame", "error", err)
		return
	}
	s.hub.broadcast(b)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := s.streamConns.Add(1)
	if current > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, frames := s.hub.subscribe()
	defer s.hub.unsubscribe(id)
	slog.Info("stream client connected", "sub_id", id, "remote", clientIP(r))

	// Catch-up frame so a client draws immediately.
	if sn := s.Sim.Snapshot(); sn != nil {
		b, err := json.Marshal(newStreamFrame(sn))
		if err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}

	// Reader: clients send nothing meaningful; a read error means they left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case b := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", id)
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
