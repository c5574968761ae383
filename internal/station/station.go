package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/z21lan/internal/observability"
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/frame"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/store"
)

// Transport delivers one encoded frame. Client session.Broadcast means every
// connected client.
type Transport interface {
	Send(client session.ClientID, frame []byte) error
}

// Releaser is implemented by transports that keep per-client state; the
// station calls it when a session ends.
type Releaser interface {
	Release(client session.ClientID)
}

// ConfigStore is the byte-addressed store behind the configuration regions.
type ConfigStore interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Monitor observes every frame that crosses the station boundary.
type Monitor interface {
	ObserveFrame(dir Direction, client session.ClientID, frame []byte)
}

// Config carries device identity and engine tuning.
type Config struct {
	SerialNumber    uint32
	HardwareType    uint32
	FirmwareVersion uint16
	VerifyChecksum  bool
	Session         session.Config
}

// DefaultConfig identifies as a Z21 (2013) running firmware 1.30.
func DefaultConfig() Config {
	return Config{
		SerialNumber:    0x00001AF5,
		HardwareType:    0x00000201,
		FirmwareVersion: 0x0130,
		VerifyChecksum:  true,
		Session:         session.DefaultConfig(),
	}
}

// Options carries the optional collaborators of a Station.
type Options struct {
	Hooks   Hooks
	Store   ConfigStore
	Monitor Monitor
}

// Station is one Z21 protocol engine instance.
type Station struct {
	cfg       Config
	table     *session.Table
	parser    protocol.Parser
	transport Transport
	hooks     Hooks
	store     ConfigStore
	monitor   Monitor
	logger    zerolog.Logger

	// dispatchMu serializes Deliver so requester is stable for hook callbacks.
	dispatchMu sync.Mutex
	requester  atomic.Uint32

	mu    sync.RWMutex
	power protocol.PowerState
}

func New(cfg Config, transport Transport, opts Options) *Station {
	cfg.Session = cfg.Session.WithDefaults()
	hooks := opts.Hooks
	if hooks == nil {
		hooks = UnimplementedHooks{}
	}
	var cs ConfigStore = opts.Store
	if cs == nil {
		cs = store.NewMemory()
	}
	return &Station{
		cfg:       cfg,
		table:     session.NewTable(cfg.Session),
		parser:    protocol.Parser{VerifyChecksum: cfg.VerifyChecksum},
		transport: transport,
		hooks:     hooks,
		store:     cs,
		monitor:   opts.Monitor,
		logger:    log.With().Str("component", "station").Logger(),
		power:     protocol.PowerOff,
	}
}

func (s *Station) Config() Config {
	return s.cfg
}

// Sessions returns a snapshot of live sessions.
func (s *Station) Sessions() []session.Session {
	return s.table.Sessions()
}

// Deliver handles one Z21 packet from client. The packet must be exactly one
// frame; transports split multi-frame datagrams first. The returned error is
// informational: malformed and unsupported packets are already answered or
// dropped as the protocol requires.
func (s *Station) Deliver(client session.ClientID, raw []byte) (protocol.Command, error) {
	f, err := frame.Decode(raw)
	if err != nil {
		observability.RecordDrop("malformed")
		s.logger.Debug().Uint16("client", uint16(client)).Err(err).Msg("drop_frame")
		if _, ok := s.table.Get(client); !ok {
			s.forget(client)
		}
		return nil, fmt.Errorf("%w: %w", protocol.ErrMalformed, err)
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.observe(Inbound, client, raw)

	res, err := s.table.Touch(client, 0)
	if err != nil {
		observability.RecordDrop("table_full")
		s.logger.Warn().Uint16("client", uint16(client)).Err(err).Msg("session_rejected")
		s.forget(client)
		return nil, err
	}
	s.requester.Store(uint32(client))
	defer s.requester.Store(uint32(session.Broadcast))
	s.sessionTouched(client, res)

	cmd, err := s.parser.Parse(f)
	if err != nil {
		return cmd, s.rejected(client, f.Header.Opcode, cmd, err)
	}
	observability.RecordFrameIn(string(cmd.Kind()))
	s.logger.Trace().
		Uint16("client", uint16(client)).
		Str("command", string(cmd.Kind())).
		Msg("dispatch")
	s.dispatch(client, cmd, res.Created)
	return cmd, nil
}

func (s *Station) rejected(client session.ClientID, opcode uint16, cmd protocol.Command, err error) error {
	if !errors.Is(err, protocol.ErrUnsupported) {
		observability.RecordDrop("malformed")
		s.logger.Debug().
			Uint16("client", uint16(client)).
			Uint16("opcode", opcode).
			Err(err).
			Msg("drop_frame")
		return err
	}
	observability.RecordDrop("unsupported")
	s.logger.Debug().
		Uint16("client", uint16(client)).
		Uint16("opcode", opcode).
		Err(err).
		Msg("unsupported_command")
	if u, ok := cmd.(protocol.Unsupported); ok && u.Extended {
		s.send(client, protocol.UnknownCommand(), RouteNone)
	}
	return err
}

// sessionTouched greets new sessions with the current power state and
// releases whatever client lost its slot.
func (s *Station) sessionTouched(client session.ClientID, res session.TouchResult) {
	if res.Evicted != session.Broadcast {
		s.release([]session.ClientID{res.Evicted}, "evicted")
	}
	if !res.Created {
		return
	}
	observability.SetSessionsLive(s.table.Len())
	s.logger.Debug().Uint16("client", uint16(client)).Msg("session_created")
	s.send(client, protocol.TrackPower(s.Power()), RouteNone)
}

func (s *Station) release(clients []session.ClientID, reason string) {
	if len(clients) == 0 {
		return
	}
	observability.RecordSessionEnd(reason, len(clients))
	observability.SetSessionsLive(s.table.Len())
	r, ok := s.transport.(Releaser)
	for _, c := range clients {
		s.logger.Debug().Uint16("client", uint16(c)).Str("reason", reason).Msg("session_ended")
		if ok {
			r.Release(c)
		}
	}
}

// forget hands back a transport binding that never became a session, so
// broadcasts cannot reach it.
func (s *Station) forget(client session.ClientID) {
	if r, ok := s.transport.(Releaser); ok {
		r.Release(client)
	}
}

// Tick advances session liveness once and releases expired clients.
func (s *Station) Tick() {
	s.release(s.table.Tick(), "expired")
}

// Run ticks session liveness every configured interval until ctx ends.
func (s *Station) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Session.TickInterval)
	defer ticker.Stop()
	s.logger.Info().
		Int("capacity", s.cfg.Session.Capacity).
		Dur("window", s.cfg.Session.Window()).
		Str("eviction", string(s.cfg.Session.Eviction)).
		Msg("station_running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Station) observe(dir Direction, client session.ClientID, raw []byte) {
	if s.monitor != nil {
		s.monitor.ObserveFrame(dir, client, raw)
	}
}

// hookDone records a hook outcome and reports whether it succeeded.
func (s *Station) hookDone(name string, err error) bool {
	switch {
	case err == nil:
		observability.RecordHook(name, "ok")
		return true
	case errors.Is(err, ErrNotImplemented):
		observability.RecordHook(name, "not_implemented")
	default:
		observability.RecordHook(name, "error")
		s.logger.Warn().Str("hook", name).Err(err).Msg("hook_failed")
	}
	return false
}
