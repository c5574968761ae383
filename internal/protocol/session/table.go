package session

import (
	"errors"
	"iter"
	"sync"

	"github.com/danmuck/z21lan/internal/protocol/bcflag"
)

// ClientID identifies a remote endpoint. The transport assigns it; 0 is the
// hardware broadcast address and never names a session.
type ClientID uint16

// Broadcast addresses every connected client at once.
const Broadcast ClientID = 0

var (
	ErrTableFull     = errors.New("session: table full")
	ErrInvalidClient = errors.New("session: client id 0 is reserved")
)

// Session is a snapshot of one slot.
type Session struct {
	Client   ClientID
	Mask     bcflag.Mask
	Liveness uint8
}

// Live reports whether the session still receives broadcasts.
func (s Session) Live() bool {
	return s.Client != Broadcast && s.Liveness > 0
}

// TouchResult describes the outcome of Touch.
type TouchResult struct {
	Mask    bcflag.Mask
	Created bool
	// Evicted is the client whose slot was reused, or Broadcast if none.
	Evicted ClientID
}

type slot struct {
	Session
	touched uint64
}

// Table is a fixed-capacity slot arena keyed by ClientID.
type Table struct {
	mu    sync.Mutex
	cfg   Config
	slots []slot
	seq   uint64
}

func NewTable(cfg Config) *Table {
	cfg = cfg.WithDefaults()
	return &Table{
		cfg:   cfg,
		slots: make([]slot, cfg.Capacity),
	}
}

func (t *Table) Config() Config {
	return t.cfg
}

// Touch refreshes client's liveness, creating its session if needed. A
// non-zero requested mask replaces the stored one. The returned mask is the
// one in effect after the call.
func (t *Table) Touch(client ClientID, requested bcflag.Mask) (TouchResult, error) {
	if client == Broadcast {
		return TouchResult{}, ErrInvalidClient
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++

	if i := t.find(client); i >= 0 && t.slots[i].Liveness > 0 {
		s := &t.slots[i]
		s.Liveness = t.cfg.Liveness
		s.touched = t.seq
		if requested != 0 {
			s.Mask = requested
		}
		return TouchResult{Mask: s.Mask}, nil
	}

	// An expired slot still holding client is reused in place.
	i := t.find(client)
	if i < 0 {
		i = t.free()
	}
	if i < 0 {
		if t.cfg.Eviction != EvictLRU {
			return TouchResult{}, ErrTableFull
		}
		i = t.oldest()
	}
	evicted := t.slots[i].Client
	if evicted == client {
		evicted = Broadcast
	}
	t.slots[i] = slot{
		Session: Session{Client: client, Mask: requested, Liveness: t.cfg.Liveness},
		touched: t.seq,
	}
	return TouchResult{Mask: requested, Created: true, Evicted: evicted}, nil
}

// Remove clears client's slot. It reports whether a session existed.
func (t *Table) Remove(client ClientID) bool {
	if client == Broadcast {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.find(client); i >= 0 {
		t.slots[i] = slot{}
		return true
	}
	return false
}

// Tick advances liveness by one interval. Slots already at zero are cleared
// and their clients returned.
func (t *Table) Tick() []ClientID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []ClientID
	for i := range t.slots {
		s := &t.slots[i]
		if s.Client == Broadcast {
			continue
		}
		if s.Liveness > 0 {
			s.Liveness--
			continue
		}
		expired = append(expired, s.Client)
		t.slots[i] = slot{}
	}
	return expired
}

// Subscribers yields, in slot order, every live client subscribed to at
// least one of classes. The sequence is taken from a snapshot so it may be
// ranged over again and the caller may use the table while ranging.
func (t *Table) Subscribers(classes bcflag.Mask) iter.Seq[ClientID] {
	return func(yield func(ClientID) bool) {
		for _, s := range t.Sessions() {
			if !s.Mask.Has(classes) {
				continue
			}
			if !yield(s.Client) {
				return
			}
		}
	}
}

// Sessions returns the live sessions in slot order.
func (t *Table) Sessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Session, 0, len(t.slots))
	for _, s := range t.slots {
		if s.Live() {
			out = append(out, s.Session)
		}
	}
	return out
}

// Get returns client's session if it is live.
func (t *Table) Get(client ClientID) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.find(client); i >= 0 && t.slots[i].Live() {
		return t.slots[i].Session, true
	}
	return Session{}, false
}

// Len counts live sessions.
func (t *Table) Len() int {
	return len(t.Sessions())
}

func (t *Table) find(client ClientID) int {
	for i := range t.slots {
		if t.slots[i].Client == client {
			return i
		}
	}
	return -1
}

// free returns the first slot with no remaining liveness.
func (t *Table) free() int {
	for i := range t.slots {
		if t.slots[i].Liveness == 0 {
			return i
		}
	}
	return -1
}

func (t *Table) oldest() int {
	idx := 0
	for i := range t.slots {
		if t.slots[i].touched < t.slots[idx].touched {
			idx = i
		}
	}
	return idx
}
