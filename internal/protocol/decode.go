package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/frame"
)

// Parser classifies frames into Commands.
type Parser struct {
	// VerifyChecksum rejects X-bus packets whose trailing XOR byte is wrong.
	VerifyChecksum bool
}

// Parse maps one frame to exactly one Command. Short payloads return
// ErrMalformed. Unknown opcodes return an Unsupported command together with
// ErrUnsupported so callers can still answer the X-bus family.
func (p Parser) Parse(f frame.Frame) (Command, error) {
	b := f.Payload
	switch f.Header.Opcode {
	case OpGetSerialNumber:
		return GetSerialNumber{}, nil
	case OpGetHardwareInfo:
		return GetHardwareInfo{}, nil
	case OpGetCode:
		return GetCode{}, nil
	case OpLogoff:
		return Logoff{}, nil
	case OpXBus:
		return p.parseXBus(b)
	case OpSetBroadcastFlags:
		if err := need(b, 4, "set_broadcast_flags"); err != nil {
			return nil, err
		}
		return SetBroadcastFlags{Flags: bcflag.Wire(binary.LittleEndian.Uint32(b[0:4]))}, nil
	case OpGetBroadcastFlags:
		return GetBroadcastFlags{}, nil
	case OpGetLocoMode:
		if err := need(b, 2, "get_loco_mode"); err != nil {
			return nil, err
		}
		return GetLocoMode{Addr: address(b[0], b[1])}, nil
	case OpSetLocoMode:
		if err := need(b, 3, "set_loco_mode"); err != nil {
			return nil, err
		}
		return SetLocoMode{Addr: address(b[0], b[1]), Mode: b[2]}, nil
	case OpGetTurnoutMode:
		if err := need(b, 2, "get_turnout_mode"); err != nil {
			return nil, err
		}
		return GetTurnoutMode{Addr: address(b[0], b[1])}, nil
	case OpSetTurnoutMode:
		if err := need(b, 3, "set_turnout_mode"); err != nil {
			return nil, err
		}
		return SetTurnoutMode{Addr: address(b[0], b[1]), Mode: b[2]}, nil
	case OpRBusGetData:
		if err := need(b, 1, "rbus_get_data"); err != nil {
			return nil, err
		}
		return GetFeedback{Group: b[0]}, nil
	case OpRBusProgramModule:
		if err := need(b, 1, "rbus_program_module"); err != nil {
			return nil, err
		}
		return ProgramFeedbackModule{Address: b[0]}, nil
	case OpSystemStateGetData:
		return GetSystemState{}, nil
	case OpRailComGetData:
		if err := need(b, 1, "railcom_get_data"); err != nil {
			return nil, err
		}
		cmd := GetRailCom{Type: b[0]}
		if b[0] == 0x01 {
			if err := need(b, 3, "railcom_get_data"); err != nil {
				return nil, err
			}
			cmd.Addr = le16(b[1], b[2])
		}
		return cmd, nil
	case OpLocoNetFromLAN:
		if err := need(b, 1, "loconet_from_lan"); err != nil {
			return nil, err
		}
		return LocoNetFromLAN{Packet: clone(b)}, nil
	case OpLocoNetDispatchAddr:
		if err := need(b, 2, "loconet_dispatch"); err != nil {
			return nil, err
		}
		return LocoNetDispatch{Addr: le16(b[0], b[1])}, nil
	case OpLocoNetDetector:
		if err := need(b, 3, "loconet_detector"); err != nil {
			return nil, err
		}
		return LocoNetDetectorQuery{Type: b[0], Addr: le16(b[1], b[2])}, nil
	case OpCANDetector:
		if err := need(b, 3, "can_detector"); err != nil {
			return nil, err
		}
		return CANDetectorQuery{Type: b[0], ID: le16(b[1], b[2])}, nil
	case OpConfig1Read:
		return ReadConfig{Region: ConfigRegion1}, nil
	case OpConfig2Read:
		return ReadConfig{Region: ConfigRegion2}, nil
	case OpConfig1Write:
		return parseConfigWrite(ConfigRegion1, b)
	case OpConfig2Write:
		return parseConfigWrite(ConfigRegion2, b)
	default:
		return Unsupported{Opcode: f.Header.Opcode}, fmt.Errorf("%w: opcode %#04x", ErrUnsupported, f.Header.Opcode)
	}
}

func (p Parser) parseXBus(payload []byte) (Command, error) {
	var b []byte
	if p.VerifyChecksum {
		body, err := frame.VerifyChecksum(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		b = body
	} else {
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: x-bus payload too short", ErrMalformed)
		}
		b = payload[:len(payload)-1]
	}

	x := b[0]
	switch x {
	case XGetSetting:
		if err := need(b, 2, "x_get_setting"); err != nil {
			return nil, err
		}
		switch b[1] {
		case dbGetVersion:
			return GetVersion{}, nil
		case dbGetStatus:
			return GetStatus{}, nil
		case dbTrackPowerOff:
			return SetTrackPower{On: false}, nil
		case dbTrackPowerOn:
			return SetTrackPower{On: true}, nil
		}
	case XCVRead:
		if err := need(b, 4, "x_cv_read"); err != nil {
			return nil, err
		}
		if b[1] == dbCVRead {
			return CVRead{CV: uint16(b[2])<<8 | uint16(b[3])}, nil
		}
	case XCVWrite:
		if err := need(b, 5, "x_cv_write"); err != nil {
			return nil, err
		}
		if b[1] == dbCVWrite {
			return CVWrite{CV: uint16(b[2])<<8 | uint16(b[3]), Value: b[4]}, nil
		}
	case XCVPOM:
		if err := need(b, 2, "x_cv_pom"); err != nil {
			return nil, err
		}
		switch b[1] {
		case dbPOMLoco:
			return parsePOM(b)
		case dbPOMAccessory:
			return POMAccessory{Raw: clone(b[2:])}, nil
		}
	case XTurnoutInfo:
		if err := need(b, 3, "x_get_turnout_info"); err != nil {
			return nil, err
		}
		return GetTurnoutInfo{Addr: address(b[1], b[2])}, nil
	case XSetTurnout:
		if err := need(b, 4, "x_set_turnout"); err != nil {
			return nil, err
		}
		return SetTurnout{
			Addr:   address(b[1], b[2]),
			Output: b[3]&0x01 != 0,
			Active: b[3]&0x08 != 0,
		}, nil
	case XSetStop:
		return EmergencyStop{}, nil
	case XGetLocoInfo:
		if err := need(b, 4, "x_get_loco_info"); err != nil {
			return nil, err
		}
		if b[1] == dbLocoInfo {
			return GetLocoInfo{Addr: address(b[2], b[3])}, nil
		}
	case XSetLoco:
		if err := need(b, 5, "x_set_loco"); err != nil {
			return nil, err
		}
		if b[1] == dbLocoFunction {
			return SetLocoFunction{
				Addr:   address(b[2], b[3]),
				Action: FunctionAction(b[4] >> 6),
				Index:  b[4] & 0x3F,
			}, nil
		}
		if b[1]&0xF0 == 0x10 {
			return SetLocoDrive{
				Addr:  address(b[2], b[3]),
				Steps: stepsFromSelector(b[1]),
				Speed: b[4],
			}, nil
		}
	case XGetFirmwareVersion:
		return GetFirmwareVersion{}, nil
	}

	return Unsupported{Opcode: OpXBus, Extended: true, XHeader: x},
		fmt.Errorf("%w: x-header %#02x", ErrUnsupported, x)
}

// parsePOM decodes LAN_X_CV_POM for locomotive decoders. DB3 carries the
// option in its top six bits and CV bits 8..9 in its low two.
func parsePOM(b []byte) (Command, error) {
	if err := need(b, 7, "x_cv_pom"); err != nil {
		return nil, err
	}
	addr := address(b[2], b[3])
	cv := uint16(b[4]&0x03)<<8 | uint16(b[5])
	value := b[6]
	switch option := b[4] >> 2; {
	case option == pomWriteByte:
		return POMWriteByte{Addr: addr, CV: cv, Value: value}, nil
	case option == pomWriteBit && value&0xF0 == 0:
		return POMWriteBit{Addr: addr, CV: cv, Position: value & 0x07, Value: value&0x08 != 0}, nil
	default:
		return POMReadByte{Addr: addr, CV: cv}, nil
	}
}

func parseConfigWrite(region ConfigRegion, b []byte) (Command, error) {
	if err := need(b, region.Len(), "write_config"); err != nil {
		return nil, err
	}
	return WriteConfig{Region: region, Data: clone(b[:region.Len()])}, nil
}

func need(b []byte, n int, what string) error {
	if len(b) < n {
		return fmt.Errorf("%w: %s needs %d payload bytes, got %d", ErrMalformed, what, n, len(b))
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
