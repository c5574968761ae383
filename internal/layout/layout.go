// Package layout is a simulated model railway behind the station hooks. It
// keeps locomotive, turnout, CV and feedback state in memory so Z21 apps can
// be exercised without hardware.
package layout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/station"
)

// Pusher is the station surface the layout reports state through.
type Pusher interface {
	Power() protocol.PowerState
	SetPower(state protocol.PowerState)
	SetLocoState(state protocol.LocoState, broadcast bool)
	SetTurnoutInfo(addr uint16, thrown bool)
	SetFeedback(data []byte)
	SetCVResult(cv uint16, value byte)
	SetCVNack()
	SetPOMResult(cv uint16, value byte)
	SetLocoNetMessage(packet []byte, classes bcflag.Mask, tx bool)
	SetLocoNetDetector(data []byte)
	SetCANDetector(d protocol.CANDetector)
	SendSystemState(client session.ClientID, current int16, voltage uint16, temperature int16)
}

const (
	feedbackGroups  = 2
	feedbackModules = 10
	maxCV           = 1024
	maxSlot         = 119

	// Rail supply in mV and idle/per-loco draw in mA.
	supplyVoltage = 18000
	idleCurrent   = 20
	locoCurrent   = 80
)

type Config struct {
	TelemetryInterval time.Duration
	// CANNetworkID is reported as the source of CAN detector answers.
	CANNetworkID uint16
}

func DefaultConfig() Config {
	return Config{
		TelemetryInterval: 5 * time.Second,
		CANNetworkID:      0xC101,
	}
}

// Layout implements station.Hooks.
type Layout struct {
	cfg    Config
	temp   Thermometer
	logger zerolog.Logger

	mu       sync.Mutex
	push     Pusher
	locos    map[uint16]protocol.LocoState
	turnouts map[uint16]bool
	cvs      [maxCV]byte
	pom      map[uint16]map[uint16]byte
	feedback [feedbackGroups][feedbackModules]byte
	slots    map[uint16]byte
	lastLoco uint16
}

var _ station.Hooks = (*Layout)(nil)

func New(cfg Config, temp Thermometer) *Layout {
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = DefaultConfig().TelemetryInterval
	}
	if temp == nil {
		temp = HostThermometer{}
	}
	l := &Layout{
		cfg:      cfg,
		temp:     temp,
		logger:   log.With().Str("component", "layout").Logger(),
		locos:    make(map[uint16]protocol.LocoState),
		turnouts: make(map[uint16]bool),
		pom:      make(map[uint16]map[uint16]byte),
		slots:    make(map[uint16]byte),
	}
	// decoder defaults: short address 3, 28 steps
	l.cvs[0] = 3
	l.cvs[28] = 0x06
	return l
}

// Bind attaches the station the layout answers through. It must be called
// before the station delivers packets.
func (l *Layout) Bind(p Pusher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.push = p
}

func (l *Layout) pusher() Pusher {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.push
}

// Run publishes telemetry to system-info subscribers until ctx ends.
func (l *Layout) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.publishTelemetry(session.Broadcast)
		}
	}
}

func (l *Layout) publishTelemetry(client session.ClientID) {
	p := l.pusher()
	if p == nil {
		return
	}
	p.SendSystemState(client, l.current(p.Power()), supplyVoltage, l.temp.Celsius())
}

// current draws idle current plus a share per moving loco while powered.
func (l *Layout) current(power protocol.PowerState) int16 {
	if power != protocol.PowerOn {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := idleCurrent
	for _, s := range l.locos {
		if s.Speed&0x7F > 1 {
			total += locoCurrent
		}
	}
	return int16(min(total, 0x7FFF))
}

// Loco returns the simulated state of addr.
func (l *Layout) Loco(addr uint16) protocol.LocoState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loco(addr)
}

func (l *Layout) loco(addr uint16) protocol.LocoState {
	if s, ok := l.locos[addr]; ok {
		return s
	}
	return protocol.LocoState{Addr: addr, Steps: protocol.Steps128}
}

// SetOccupied flips one feedback input and reports the changed group.
func (l *Layout) SetOccupied(group uint8, module uint8, input uint8, occupied bool) {
	if group >= feedbackGroups || module >= feedbackModules || input > 7 {
		return
	}
	l.mu.Lock()
	bit := byte(1) << input
	if occupied {
		l.feedback[group][module] |= bit
	} else {
		l.feedback[group][module] &^= bit
	}
	data := l.feedbackGroup(group)
	p := l.push
	l.mu.Unlock()
	if p != nil {
		p.SetFeedback(data)
	}
}

func (l *Layout) feedbackGroup(group uint8) []byte {
	data := make([]byte, 0, feedbackModules+1)
	data = append(data, group)
	return append(data, l.feedback[group][:]...)
}
