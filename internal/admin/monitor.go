package admin

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/z21lan/internal/protocol/frame"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/station"
)

var ErrTooManyWatchers = errors.New("admin: too many monitor connections")

// FrameEvent is one monitor line.
type FrameEvent struct {
	At     time.Time         `json:"at"`
	Dir    station.Direction `json:"dir"`
	Client uint16            `json:"client"`
	Opcode uint16            `json:"opcode"`
	Bytes  string            `json:"bytes"`
}

type watcher struct {
	conn *websocket.Conn
	send chan []byte
}

func newWatcher(conn *websocket.Conn) *watcher {
	w := &watcher{
		conn: conn,
		send: make(chan []byte, 128),
	}
	go w.writePump()
	return w
}

func (w *watcher) writePump() {
	defer w.conn.Close()
	for msg := range w.send {
		if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub streams every station frame to connected websocket watchers. It
// implements station.Monitor and never blocks the station: a watcher that
// cannot keep up is disconnected.
type Hub struct {
	mu       sync.RWMutex
	watchers map[*watcher]struct{}
	max      int
}

var _ station.Monitor = (*Hub)(nil)

func NewHub(maxWatchers int) *Hub {
	return &Hub{
		watchers: make(map[*watcher]struct{}),
		max:      maxWatchers,
	}
}

func (h *Hub) Add(conn *websocket.Conn) (*watcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.max > 0 && len(h.watchers) >= h.max {
		return nil, ErrTooManyWatchers
	}
	w := newWatcher(conn)
	h.watchers[w] = struct{}{}
	return w, nil
}

func (h *Hub) Remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		delete(h.watchers, w)
		close(w.send)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

func (h *Hub) ObserveFrame(dir station.Direction, client session.ClientID, raw []byte) {
	if h.Count() == 0 {
		return
	}
	ev := FrameEvent{
		At:     time.Now().UTC(),
		Dir:    dir,
		Client: uint16(client),
		Bytes:  hex.EncodeToString(raw),
	}
	if hdr, err := frame.DecodeHeader(raw); err == nil {
		ev.Opcode = hdr.Opcode
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("monitor_marshal_failed")
		return
	}

	var slow []*watcher
	h.mu.RLock()
	for w := range h.watchers {
		select {
		case w.send <- data:
		default:
			slow = append(slow, w)
		}
	}
	h.mu.RUnlock()

	for _, w := range slow {
		log.Warn().Msg("monitor watcher too slow, disconnecting")
		h.Remove(w)
	}
}
