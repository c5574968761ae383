package station

import (
	"errors"

	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

// ErrNotImplemented is returned by UnimplementedHooks for every hook. The
// station treats it as "feature unused", not as a failure.
var ErrNotImplemented = errors.New("station: hook not implemented")

// Hooks receives decoded requests that need railway-domain logic. Calls are
// synchronous within Deliver and must not block. A hook may answer by calling
// the Station push operations; unicast pushes go to the client whose packet is
// being handled.
type Hooks interface {
	SetTrackPower(state protocol.PowerState) error
	ReadCV(cv uint16) error
	WriteCV(cv uint16, value byte) error
	WritePOMByte(addr, cv uint16, value byte) error
	WritePOMBit(addr, cv uint16, position uint8, value bool) error
	ReadPOMByte(addr, cv uint16) error
	AccessoryInfo(addr uint16) (thrown bool, err error)
	SetAccessory(addr uint16, output, active bool) error
	GetLocoState(addr uint16) error
	SetLocoFunction(addr uint16, action protocol.FunctionAction, index uint8) error
	SetLocoDrive(addr uint16, steps protocol.SpeedSteps, speed byte) error
	FeedbackData(group uint8) error
	SystemState(client session.ClientID) error
	RailComAddress() (uint16, error)
	LocoNetSend(packet []byte) error
	LocoNetDispatch(addr uint16) (slot byte, err error)
	LocoNetDetector(typ byte, addr uint16) error
	CANDetector(typ byte, id uint16) error
	ConfigChanged(region protocol.ConfigRegion) error
}

// UnimplementedHooks can be embedded to implement only some hooks.
type UnimplementedHooks struct{}

func (UnimplementedHooks) SetTrackPower(protocol.PowerState) error       { return ErrNotImplemented }
func (UnimplementedHooks) ReadCV(uint16) error                           { return ErrNotImplemented }
func (UnimplementedHooks) WriteCV(uint16, byte) error                    { return ErrNotImplemented }
func (UnimplementedHooks) WritePOMByte(uint16, uint16, byte) error       { return ErrNotImplemented }
func (UnimplementedHooks) WritePOMBit(uint16, uint16, uint8, bool) error { return ErrNotImplemented }
func (UnimplementedHooks) ReadPOMByte(uint16, uint16) error              { return ErrNotImplemented }
func (UnimplementedHooks) AccessoryInfo(uint16) (bool, error)            { return false, ErrNotImplemented }
func (UnimplementedHooks) SetAccessory(uint16, bool, bool) error         { return ErrNotImplemented }
func (UnimplementedHooks) GetLocoState(uint16) error                     { return ErrNotImplemented }
func (UnimplementedHooks) SetLocoFunction(uint16, protocol.FunctionAction, uint8) error {
	return ErrNotImplemented
}
func (UnimplementedHooks) SetLocoDrive(uint16, protocol.SpeedSteps, byte) error {
	return ErrNotImplemented
}
func (UnimplementedHooks) FeedbackData(uint8) error                  { return ErrNotImplemented }
func (UnimplementedHooks) SystemState(session.ClientID) error        { return ErrNotImplemented }
func (UnimplementedHooks) RailComAddress() (uint16, error)           { return 0, ErrNotImplemented }
func (UnimplementedHooks) LocoNetSend([]byte) error                  { return ErrNotImplemented }
func (UnimplementedHooks) LocoNetDispatch(uint16) (byte, error)      { return 0, ErrNotImplemented }
func (UnimplementedHooks) LocoNetDetector(byte, uint16) error        { return ErrNotImplemented }
func (UnimplementedHooks) CANDetector(byte, uint16) error            { return ErrNotImplemented }
func (UnimplementedHooks) ConfigChanged(protocol.ConfigRegion) error { return ErrNotImplemented }

var _ Hooks = UnimplementedHooks{}
