package protocol

// Opcodes carried in header bytes 2..3.
const (
	OpGetSerialNumber        uint16 = 0x10
	OpConfig1Read            uint16 = 0x12
	OpConfig1Write           uint16 = 0x13
	OpConfig2Read            uint16 = 0x16
	OpConfig2Write           uint16 = 0x17
	OpGetCode                uint16 = 0x18
	OpGetHardwareInfo        uint16 = 0x1A
	OpLogoff                 uint16 = 0x30
	OpXBus                   uint16 = 0x40
	OpSetBroadcastFlags      uint16 = 0x50
	OpGetBroadcastFlags      uint16 = 0x51
	OpGetLocoMode            uint16 = 0x60
	OpSetLocoMode            uint16 = 0x61
	OpGetTurnoutMode         uint16 = 0x70
	OpSetTurnoutMode         uint16 = 0x71
	OpRBusDataChanged        uint16 = 0x80
	OpRBusGetData            uint16 = 0x81
	OpRBusProgramModule      uint16 = 0x82
	OpSystemStateDataChanged uint16 = 0x84
	OpSystemStateGetData     uint16 = 0x85
	OpRailComDataChanged     uint16 = 0x88
	OpRailComGetData         uint16 = 0x89
	OpLocoNetRX              uint16 = 0xA0
	OpLocoNetTX              uint16 = 0xA1
	OpLocoNetFromLAN         uint16 = 0xA2
	OpLocoNetDispatchAddr    uint16 = 0xA3
	OpLocoNetDetector        uint16 = 0xA4
	OpCANDetector            uint16 = 0xC4
)

// X-bus headers (payload byte 0 of OpXBus packets).
const (
	XGetSetting         byte = 0x21
	XCVRead             byte = 0x23
	XCVWrite            byte = 0x24
	XTurnoutInfo        byte = 0x43
	XSetTurnout         byte = 0x53
	XBCTrackPower       byte = 0x61
	XStatusChanged      byte = 0x62
	XGetVersion         byte = 0x63
	XCVResult           byte = 0x64
	XSetStop            byte = 0x80
	XBCStopped          byte = 0x81
	XGetLocoInfo        byte = 0xE3
	XSetLoco            byte = 0xE4
	XCVPOM              byte = 0xE6
	XLocoInfo           byte = 0xEF
	XGetFirmwareVersion byte = 0xF1
	XFirmwareVersion    byte = 0xF3
)

// X-bus DB0 discriminants.
const (
	dbGetVersion     byte = 0x21
	dbGetStatus      byte = 0x24
	dbTrackPowerOff  byte = 0x80
	dbTrackPowerOn   byte = 0x81
	dbCVRead         byte = 0x11
	dbCVWrite        byte = 0x12
	dbPOMLoco        byte = 0x30
	dbPOMAccessory   byte = 0x31
	dbLocoInfo       byte = 0xF0
	dbLocoFunction   byte = 0xF8
	dbFirmware       byte = 0x0A
	dbUnknownCommand byte = 0x82
	dbCVNack         byte = 0x13
	dbCVShortCircuit byte = 0x12
	dbCVResult       byte = 0x14
)

// POM option bits (DB3 >> 2).
const (
	pomWriteByte byte = 0x3B
	pomWriteBit  byte = 0x3A
)

// PowerState is the central state reported in status replies.
type PowerState uint8

const (
	PowerOn            PowerState = 0x00
	PowerEmergencyStop PowerState = 0x01
	PowerOff           PowerState = 0x02
	PowerShortCircuit  PowerState = 0x04
	PowerProgramming   PowerState = 0x20
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerEmergencyStop:
		return "emergency_stop"
	case PowerOff:
		return "off"
	case PowerShortCircuit:
		return "short_circuit"
	case PowerProgramming:
		return "programming"
	default:
		return "unknown"
	}
}

// SpeedSteps is the decoder speed step mode.
type SpeedSteps uint8

const (
	Steps14  SpeedSteps = 14
	Steps28  SpeedSteps = 28
	Steps128 SpeedSteps = 128
)

// DCC step selector codes as used by a command station's own loco state.
const (
	DCCSteps14  byte = 0x01
	DCCSteps28  byte = 0x02
	DCCSteps128 byte = 0x03
)

// StepsFromDCC maps a DCC step selector to SpeedSteps; anything unknown is 14.
func StepsFromDCC(code byte) SpeedSteps {
	switch code & 0x03 {
	case DCCSteps128:
		return Steps128
	case DCCSteps28:
		return Steps28
	default:
		return Steps14
	}
}

// stepsFromSelector decodes the low bits of a LAN_X_SET_LOCO_DRIVE DB0.
func stepsFromSelector(db0 byte) SpeedSteps {
	switch db0 & 0x03 {
	case 0x03:
		return Steps128
	case 0x02:
		return Steps28
	default:
		return Steps14
	}
}

// infoCode is the step mode as encoded in LAN_X_LOCO_INFO.
func (s SpeedSteps) infoCode() byte {
	switch s {
	case Steps28:
		return 2
	case Steps128:
		return 4
	default:
		return 0
	}
}

// FunctionAction is the switch type of LAN_X_SET_LOCO_FUNCTION.
type FunctionAction uint8

const (
	FunctionOff    FunctionAction = 0
	FunctionOn     FunctionAction = 1
	FunctionToggle FunctionAction = 2
)

// ConfigRegion names one of the two persisted configuration blocks.
type ConfigRegion uint8

const (
	ConfigRegion1 ConfigRegion = 1
	ConfigRegion2 ConfigRegion = 2
)

// Offset is the region's first byte in the configuration store.
func (r ConfigRegion) Offset() int64 {
	if r == ConfigRegion2 {
		return 60
	}
	return 50
}

// Len is the region size in bytes.
func (r ConfigRegion) Len() int {
	if r == ConfigRegion2 {
		return 16
	}
	return 10
}

func (r ConfigRegion) readOpcode() uint16 {
	if r == ConfigRegion2 {
		return OpConfig2Read
	}
	return OpConfig1Read
}

// address assembles a 14-bit loco/accessory address.
func address(hi, lo byte) uint16 {
	return uint16(hi&0x3F)<<8 | uint16(lo)
}

// le16 assembles a little endian word.
func le16(lo, hi byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
