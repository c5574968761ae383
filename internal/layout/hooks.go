package layout

import (
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/station"
)

func (l *Layout) SetTrackPower(state protocol.PowerState) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	p.SetPower(state)
	return nil
}

func (l *Layout) ReadCV(cv uint16) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	if cv >= maxCV {
		p.SetCVNack()
		return nil
	}
	l.mu.Lock()
	value := l.cvs[cv]
	l.mu.Unlock()
	p.SetCVResult(cv, value)
	return nil
}

func (l *Layout) WriteCV(cv uint16, value byte) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	if cv >= maxCV {
		p.SetCVNack()
		return nil
	}
	l.mu.Lock()
	l.cvs[cv] = value
	l.mu.Unlock()
	p.SetCVResult(cv, value)
	return nil
}

func (l *Layout) WritePOMByte(addr, cv uint16, value byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pomCVs(addr)[cv] = value
	return nil
}

func (l *Layout) WritePOMBit(addr, cv uint16, position uint8, value bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cvs := l.pomCVs(addr)
	bit := byte(1) << (position & 0x07)
	if value {
		cvs[cv] |= bit
	} else {
		cvs[cv] &^= bit
	}
	return nil
}

func (l *Layout) ReadPOMByte(addr, cv uint16) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	l.mu.Lock()
	value := l.pomCVs(addr)[cv]
	l.mu.Unlock()
	p.SetPOMResult(cv, value)
	return nil
}

func (l *Layout) pomCVs(addr uint16) map[uint16]byte {
	cvs, ok := l.pom[addr]
	if !ok {
		cvs = make(map[uint16]byte)
		l.pom[addr] = cvs
	}
	return cvs
}

func (l *Layout) AccessoryInfo(addr uint16) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.turnouts[addr], nil
}

func (l *Layout) SetAccessory(addr uint16, output, active bool) error {
	if !active {
		return nil
	}
	l.mu.Lock()
	l.turnouts[addr] = output
	p := l.push
	l.mu.Unlock()
	if p != nil {
		p.SetTurnoutInfo(addr, output)
	}
	return nil
}

func (l *Layout) GetLocoState(addr uint16) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	p.SetLocoState(l.Loco(addr), false)
	return nil
}

func (l *Layout) SetLocoDrive(addr uint16, steps protocol.SpeedSteps, speed byte) error {
	l.mu.Lock()
	s := l.loco(addr)
	s.Steps = steps
	s.Speed = speed
	l.locos[addr] = s
	l.lastLoco = addr
	p := l.push
	l.mu.Unlock()
	if p != nil {
		p.SetLocoState(s, true)
	}
	return nil
}

func (l *Layout) SetLocoFunction(addr uint16, action protocol.FunctionAction, index uint8) error {
	l.mu.Lock()
	s := l.loco(addr)
	setFunction(&s, index, action)
	l.locos[addr] = s
	l.lastLoco = addr
	p := l.push
	l.mu.Unlock()
	if p != nil {
		p.SetLocoState(s, true)
	}
	return nil
}

// setFunction applies action to function index in the LAN_X_LOCO_INFO
// layout: byte 0 holds F0 at bit 4 and F1..F4 at bits 0..3, bytes 1..3 hold
// F5..F12, F13..F20 and F21..F28.
func setFunction(s *protocol.LocoState, index uint8, action protocol.FunctionAction) {
	var byteIdx int
	var bit byte
	switch {
	case index == 0:
		byteIdx, bit = 0, 1<<4
	case index <= 4:
		byteIdx, bit = 0, 1<<(index-1)
	case index <= 28:
		byteIdx = 1 + int(index-5)/8
		bit = 1 << ((index - 5) % 8)
	default:
		return
	}
	switch action {
	case protocol.FunctionOn:
		s.Functions[byteIdx] |= bit
	case protocol.FunctionOff:
		s.Functions[byteIdx] &^= bit
	case protocol.FunctionToggle:
		s.Functions[byteIdx] ^= bit
	}
}

func (l *Layout) FeedbackData(group uint8) error {
	if group >= feedbackGroups {
		return nil
	}
	l.mu.Lock()
	data := l.feedbackGroup(group)
	p := l.push
	l.mu.Unlock()
	if p == nil {
		return station.ErrNotImplemented
	}
	p.SetFeedback(data)
	return nil
}

func (l *Layout) SystemState(client session.ClientID) error {
	if l.pusher() == nil {
		return station.ErrNotImplemented
	}
	l.publishTelemetry(client)
	return nil
}

// RailComAddress reports the loco driven last, as if it were on the
// programming RailCom cutout.
func (l *Layout) RailComAddress() (uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLoco, nil
}

func (l *Layout) LocoNetSend(packet []byte) error {
	l.logger.Debug().Hex("packet", packet).Msg("loconet_tx")
	return nil
}

// LocoNetDispatch hands out stable slots 1..119 per loco address.
func (l *Layout) LocoNetDispatch(addr uint16) (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, ok := l.slots[addr]; ok {
		return slot, nil
	}
	if len(l.slots) >= maxSlot {
		return 0, nil
	}
	slot := byte(len(l.slots) + 1)
	l.slots[addr] = slot
	return slot, nil
}

// LocoNetDetector answers occupancy reports from the R-Bus inputs; address
// n maps to group n/80, module (n/8)%10, input n%8.
func (l *Layout) LocoNetDetector(typ byte, addr uint16) error {
	occupied, ok := l.occupied(addr)
	if !ok {
		return nil
	}
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	var state byte
	if occupied {
		state = 1
	}
	p.SetLocoNetDetector([]byte{typ, byte(addr), byte(addr >> 8), state})
	return nil
}

func (l *Layout) CANDetector(_ byte, id uint16) error {
	p := l.pusher()
	if p == nil {
		return station.ErrNotImplemented
	}
	occupied, _ := l.occupied(id)
	d := protocol.CANDetector{
		NetworkID: l.cfg.CANNetworkID,
		Addr:      id,
		Port:      0,
		Type:      0x01,
	}
	if occupied {
		d.Value1 = 0x1100
	} else {
		d.Value1 = 0x0100
	}
	p.SetCANDetector(d)
	return nil
}

func (l *Layout) ConfigChanged(region protocol.ConfigRegion) error {
	l.logger.Info().Uint8("region", uint8(region)).Msg("config_changed")
	return nil
}

func (l *Layout) occupied(addr uint16) (bool, bool) {
	group := addr / 80
	module := (addr / 8) % feedbackModules
	input := addr % 8
	if group >= feedbackGroups {
		return false, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feedback[group][module]&(1<<input) != 0, true
}
