package protocol

import (
	"encoding/binary"

	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/frame"
)

// Message is one outbound packet before framing.
type Message struct {
	Opcode   uint16
	Payload  []byte
	Checksum bool
}

// Encode frames m for the wire.
func (m Message) Encode() ([]byte, error) {
	return frame.Encode(m.Opcode, m.Payload, m.Checksum)
}

func xbus(payload ...byte) Message {
	return Message{Opcode: OpXBus, Payload: payload, Checksum: true}
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func SerialNumberReply(serial uint32) Message {
	return Message{Opcode: OpGetSerialNumber, Payload: le32(serial)}
}

func HardwareInfoReply(hardwareType, firmware uint32) Message {
	payload := append(le32(hardwareType), le32(firmware)...)
	return Message{Opcode: OpGetHardwareInfo, Payload: payload}
}

func CodeReply(code byte) Message {
	return Message{Opcode: OpGetCode, Payload: []byte{code}}
}

// VersionReply reports X-bus version 3.0 and the Z21 central id.
func VersionReply() Message {
	return xbus(XGetVersion, dbGetVersion, 0x30, 0x12)
}

func StatusReply(state PowerState) Message {
	return xbus(XStatusChanged, 0x22, byte(state))
}

// FirmwareVersionReply encodes a BCD firmware version such as 0x0130 (1.30).
func FirmwareVersionReply(firmware uint16) Message {
	return xbus(XFirmwareVersion, dbFirmware, byte(firmware>>8), byte(firmware))
}

func UnknownCommand() Message {
	return xbus(XBCTrackPower, dbUnknownCommand)
}

func BroadcastFlagsReply(flags bcflag.Wire) Message {
	return Message{Opcode: OpGetBroadcastFlags, Payload: le32(uint32(flags))}
}

// TrackPower is the unsolicited power-state broadcast.
func TrackPower(state PowerState) Message {
	switch state {
	case PowerEmergencyStop:
		return xbus(XBCStopped, 0x00)
	case PowerOn:
		return xbus(XBCTrackPower, 0x01)
	case PowerProgramming:
		return xbus(XBCTrackPower, 0x02)
	case PowerShortCircuit:
		return xbus(XBCTrackPower, 0x08)
	default:
		return xbus(XBCTrackPower, 0x00)
	}
}

// LocoState is the full state of one locomotive decoder.
type LocoState struct {
	Addr      uint16
	Steps     SpeedSteps
	Speed     byte
	Functions [4]byte
}

func LocoInfo(s LocoState) Message {
	return xbus(
		XLocoInfo,
		byte(s.Addr>>8)&0x3F,
		byte(s.Addr),
		s.Steps.infoCode(),
		s.Speed,
		s.Functions[0],
		s.Functions[1],
		s.Functions[2],
		s.Functions[3],
	)
}

func TurnoutInfo(addr uint16, thrown bool) Message {
	state := byte(0x01)
	if thrown {
		state = 0x02
	}
	return xbus(XTurnoutInfo, byte(addr>>8), byte(addr), state)
}

func CVResult(cv uint16, value byte) Message {
	return xbus(XCVResult, dbCVResult, byte(cv>>8), byte(cv), value)
}

// POMResult answers a POM read; only CV bits 0..13 are meaningful.
func POMResult(cv uint16, value byte) Message {
	return xbus(XCVResult, dbCVResult, byte(cv>>8)&0x3F, byte(cv), value)
}

func CVNack() Message {
	return xbus(XBCTrackPower, dbCVNack)
}

func CVShortCircuit() Message {
	return xbus(XBCTrackPower, dbCVShortCircuit)
}

// SystemState is the LAN_SYSTEMSTATE_DATACHANGED record. Currents are mA,
// voltages mV, temperature degrees C.
type SystemState struct {
	MainCurrent         int16
	ProgCurrent         int16
	FilteredMainCurrent int16
	Temperature         int16
	SupplyVoltage       uint16
	VCCVoltage          uint16
	CentralState        PowerState
	CentralStateEx      byte
}

func SystemStateChanged(s SystemState) Message {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(s.MainCurrent))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(s.ProgCurrent))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(s.FilteredMainCurrent))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(s.Temperature))
	binary.LittleEndian.PutUint16(buf[8:10], s.SupplyVoltage)
	binary.LittleEndian.PutUint16(buf[10:12], s.VCCVoltage)
	buf[12] = byte(s.CentralState)
	buf[13] = s.CentralStateEx
	return Message{Opcode: OpSystemStateDataChanged, Payload: buf}
}

// RailComData reports the address first (MSB, LSB) followed by zeroed
// receive and error counters.
func RailComData(addr uint16) Message {
	buf := make([]byte, 10)
	buf[0] = byte(addr >> 8)
	buf[1] = byte(addr)
	return Message{Opcode: OpRailComDataChanged, Payload: buf}
}

func LocoNetDispatchReply(addr uint16, slot byte) Message {
	return Message{Opcode: OpLocoNetDispatchAddr, Payload: []byte{byte(addr), byte(addr >> 8), slot}}
}

// LocoNetEcho tells other clients that a LAN packet was put on LocoNet.
func LocoNetEcho(packet []byte) Message {
	return Message{Opcode: OpLocoNetFromLAN, Payload: clone(packet)}
}

func LocoNetMessage(packet []byte, tx bool) Message {
	op := OpLocoNetRX
	if tx {
		op = OpLocoNetTX
	}
	return Message{Opcode: op, Payload: clone(packet)}
}

func LocoNetDetectorData(data []byte) Message {
	return Message{Opcode: OpLocoNetDetector, Payload: clone(data)}
}

// FeedbackData carries a group index followed by ten R-Bus module bytes.
func FeedbackData(data []byte) Message {
	return Message{Opcode: OpRBusDataChanged, Payload: clone(data)}
}

// CANDetector is one occupancy report from a CAN feedback module.
type CANDetector struct {
	NetworkID uint16
	Addr      uint16
	Port      byte
	Type      byte
	Value1    uint16
	Value2    uint16
}

func CANDetectorData(d CANDetector) Message {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint16(buf[0:2], d.NetworkID)
	binary.LittleEndian.PutUint16(buf[2:4], d.Addr)
	buf[4] = d.Port
	buf[5] = d.Type
	binary.LittleEndian.PutUint16(buf[6:8], d.Value1)
	binary.LittleEndian.PutUint16(buf[8:10], d.Value2)
	return Message{Opcode: OpCANDetector, Payload: buf}
}

func ConfigData(region ConfigRegion, data []byte) Message {
	return Message{Opcode: region.readOpcode(), Payload: clone(data)}
}

func LocoModeReply(addr uint16, mode byte) Message {
	return Message{Opcode: OpGetLocoMode, Payload: []byte{byte(addr>>8) & 0x3F, byte(addr), mode}}
}

func TurnoutModeReply(addr uint16, mode byte) Message {
	return Message{Opcode: OpGetTurnoutMode, Payload: []byte{byte(addr>>8) & 0x3F, byte(addr), mode}}
}
