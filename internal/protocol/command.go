package protocol

import "github.com/danmuck/z21lan/internal/protocol/bcflag"

// Kind names a Command variant for logs and metrics.
type Kind string

// Command is one classified inbound packet. The concrete types below are the
// complete set; each carries exactly what its handler needs.
type Command interface {
	Kind() Kind
}

type (
	GetSerialNumber    struct{}
	GetHardwareInfo    struct{}
	GetCode            struct{}
	Logoff             struct{}
	GetVersion         struct{}
	GetStatus          struct{}
	GetFirmwareVersion struct{}
	GetBroadcastFlags  struct{}
	GetSystemState     struct{}
	EmergencyStop      struct{}

	SetTrackPower struct {
		On bool
	}

	CVRead struct {
		CV uint16
	}

	CVWrite struct {
		CV    uint16
		Value byte
	}

	POMWriteByte struct {
		Addr  uint16
		CV    uint16
		Value byte
	}

	POMWriteBit struct {
		Addr     uint16
		CV       uint16
		Position uint8
		Value    bool
	}

	POMReadByte struct {
		Addr uint16
		CV   uint16
	}

	POMAccessory struct {
		Raw []byte
	}

	GetTurnoutInfo struct {
		Addr uint16
	}

	SetTurnout struct {
		Addr   uint16
		Output bool
		Active bool
	}

	GetLocoInfo struct {
		Addr uint16
	}

	SetLocoDrive struct {
		Addr  uint16
		Steps SpeedSteps
		Speed byte
	}

	SetLocoFunction struct {
		Addr   uint16
		Action FunctionAction
		Index  uint8
	}

	SetBroadcastFlags struct {
		Flags bcflag.Wire
	}

	GetLocoMode struct {
		Addr uint16
	}

	SetLocoMode struct {
		Addr uint16
		Mode byte
	}

	GetTurnoutMode struct {
		Addr uint16
	}

	SetTurnoutMode struct {
		Addr uint16
		Mode byte
	}

	GetFeedback struct {
		Group uint8
	}

	ProgramFeedbackModule struct {
		Address uint8
	}

	GetRailCom struct {
		Type byte
		Addr uint16
	}

	LocoNetFromLAN struct {
		Packet []byte
	}

	LocoNetDispatch struct {
		Addr uint16
	}

	LocoNetDetectorQuery struct {
		Type byte
		Addr uint16
	}

	CANDetectorQuery struct {
		Type byte
		ID   uint16
	}

	ReadConfig struct {
		Region ConfigRegion
	}

	WriteConfig struct {
		Region ConfigRegion
		Data   []byte
	}

	// Unsupported is a well-framed packet nothing here understands. Extended is
	// set for X-bus packets, which are answered with LAN_X_UNKNOWN_COMMAND.
	Unsupported struct {
		Opcode   uint16
		Extended bool
		XHeader  byte
	}
)

func (GetSerialNumber) Kind() Kind       { return "get_serial_number" }
func (GetHardwareInfo) Kind() Kind       { return "get_hardware_info" }
func (GetCode) Kind() Kind               { return "get_code" }
func (Logoff) Kind() Kind                { return "logoff" }
func (GetVersion) Kind() Kind            { return "get_version" }
func (GetStatus) Kind() Kind             { return "get_status" }
func (GetFirmwareVersion) Kind() Kind    { return "get_firmware_version" }
func (GetBroadcastFlags) Kind() Kind     { return "get_broadcast_flags" }
func (GetSystemState) Kind() Kind        { return "get_system_state" }
func (EmergencyStop) Kind() Kind         { return "emergency_stop" }
func (SetTrackPower) Kind() Kind         { return "set_track_power" }
func (CVRead) Kind() Kind                { return "cv_read" }
func (CVWrite) Kind() Kind               { return "cv_write" }
func (POMWriteByte) Kind() Kind          { return "pom_write_byte" }
func (POMWriteBit) Kind() Kind           { return "pom_write_bit" }
func (POMReadByte) Kind() Kind           { return "pom_read_byte" }
func (POMAccessory) Kind() Kind          { return "pom_accessory" }
func (GetTurnoutInfo) Kind() Kind        { return "get_turnout_info" }
func (SetTurnout) Kind() Kind            { return "set_turnout" }
func (GetLocoInfo) Kind() Kind           { return "get_loco_info" }
func (SetLocoDrive) Kind() Kind          { return "set_loco_drive" }
func (SetLocoFunction) Kind() Kind       { return "set_loco_function" }
func (SetBroadcastFlags) Kind() Kind     { return "set_broadcast_flags" }
func (GetLocoMode) Kind() Kind           { return "get_loco_mode" }
func (SetLocoMode) Kind() Kind           { return "set_loco_mode" }
func (GetTurnoutMode) Kind() Kind        { return "get_turnout_mode" }
func (SetTurnoutMode) Kind() Kind        { return "set_turnout_mode" }
func (GetFeedback) Kind() Kind           { return "get_feedback" }
func (ProgramFeedbackModule) Kind() Kind { return "program_feedback_module" }
func (GetRailCom) Kind() Kind            { return "get_railcom" }
func (LocoNetFromLAN) Kind() Kind        { return "loconet_from_lan" }
func (LocoNetDispatch) Kind() Kind       { return "loconet_dispatch" }
func (LocoNetDetectorQuery) Kind() Kind  { return "loconet_detector" }
func (CANDetectorQuery) Kind() Kind      { return "can_detector" }
func (ReadConfig) Kind() Kind            { return "read_config" }
func (WriteConfig) Kind() Kind           { return "write_config" }
func (Unsupported) Kind() Kind           { return "unsupported" }
