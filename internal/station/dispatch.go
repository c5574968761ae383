package station

import (
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

// modeDCC is the only decoder/turnout output format this station drives.
const modeDCC byte = 0x00

// dispatch routes one decoded command. created reports whether the packet
// opened a new session, in which case power was already announced.
func (s *Station) dispatch(client session.ClientID, cmd protocol.Command, created bool) {
	switch c := cmd.(type) {
	case protocol.GetSerialNumber:
		s.send(client, protocol.SerialNumberReply(s.cfg.SerialNumber), RouteNone)
	case protocol.GetHardwareInfo:
		s.send(client, protocol.HardwareInfoReply(s.cfg.HardwareType, uint32(s.cfg.FirmwareVersion)), RouteNone)
	case protocol.GetCode:
		s.send(client, protocol.CodeReply(0x00), RouteNone)
	case protocol.Logoff:
		if s.table.Remove(client) {
			s.release([]session.ClientID{client}, "logoff")
		}
	case protocol.GetVersion:
		s.send(client, protocol.VersionReply(), RouteNone)
	case protocol.GetStatus:
		s.send(client, protocol.StatusReply(s.Power()), RouteNone)
	case protocol.GetFirmwareVersion:
		s.send(client, protocol.FirmwareVersionReply(s.cfg.FirmwareVersion), RouteNone)

	case protocol.SetTrackPower:
		state := protocol.PowerOff
		if c.On {
			state = protocol.PowerOn
		}
		s.hookDone("set_track_power", s.hooks.SetTrackPower(state))
	case protocol.EmergencyStop:
		s.hookDone("set_track_power", s.hooks.SetTrackPower(protocol.PowerEmergencyStop))

	case protocol.CVRead:
		s.hookDone("read_cv", s.hooks.ReadCV(c.CV))
	case protocol.CVWrite:
		s.hookDone("write_cv", s.hooks.WriteCV(c.CV, c.Value))
	case protocol.POMWriteByte:
		s.hookDone("write_pom_byte", s.hooks.WritePOMByte(c.Addr, c.CV, c.Value))
	case protocol.POMWriteBit:
		s.hookDone("write_pom_bit", s.hooks.WritePOMBit(c.Addr, c.CV, c.Position, c.Value))
	case protocol.POMReadByte:
		s.hookDone("read_pom_byte", s.hooks.ReadPOMByte(c.Addr, c.CV))
	case protocol.POMAccessory:
		s.logger.Debug().Uint16("client", uint16(client)).Msg("pom_accessory_ignored")

	case protocol.GetTurnoutInfo:
		thrown, err := s.hooks.AccessoryInfo(c.Addr)
		if s.hookDone("accessory_info", err) {
			s.SetTurnoutInfo(c.Addr, thrown)
		}
	case protocol.SetTurnout:
		s.hookDone("set_accessory", s.hooks.SetAccessory(c.Addr, c.Output, c.Active))

	case protocol.GetLocoInfo:
		s.hookDone("get_loco_state", s.hooks.GetLocoState(c.Addr))
	case protocol.SetLocoDrive:
		s.hookDone("set_loco_drive", s.hooks.SetLocoDrive(c.Addr, c.Steps, c.Speed))
	case protocol.SetLocoFunction:
		s.hookDone("set_loco_function", s.hooks.SetLocoFunction(c.Addr, c.Action, c.Index))

	case protocol.SetBroadcastFlags:
		if _, err := s.table.Touch(client, bcflag.ToInternal(c.Flags)); err != nil {
			s.logger.Warn().Uint16("client", uint16(client)).Err(err).Msg("subscribe_failed")
			return
		}
		s.logger.Debug().
			Uint16("client", uint16(client)).
			Stringer("mask", bcflag.ToInternal(c.Flags)).
			Msg("subscribed")
		if !created {
			s.send(client, protocol.TrackPower(s.Power()), RouteNone)
		}
	case protocol.GetBroadcastFlags:
		var mask bcflag.Mask
		if sess, ok := s.table.Get(client); ok {
			mask = sess.Mask
		}
		s.send(client, protocol.BroadcastFlagsReply(bcflag.ToWire(mask)), RouteNone)

	case protocol.GetSystemState:
		if !s.hookDone("system_state", s.hooks.SystemState(client)) {
			s.send(client, protocol.SystemStateChanged(protocol.SystemState{CentralState: s.Power()}), RouteNone)
		}

	case protocol.GetLocoMode:
		s.send(client, protocol.LocoModeReply(c.Addr, modeDCC), RouteNone)
	case protocol.GetTurnoutMode:
		s.send(client, protocol.TurnoutModeReply(c.Addr, modeDCC), RouteNone)
	case protocol.SetLocoMode, protocol.SetTurnoutMode, protocol.ProgramFeedbackModule:
		s.logger.Debug().Str("command", string(cmd.Kind())).Msg("accepted_without_effect")

	case protocol.GetFeedback:
		s.hookDone("feedback_data", s.hooks.FeedbackData(c.Group))
	case protocol.GetRailCom:
		addr := c.Addr
		if hookAddr, err := s.hooks.RailComAddress(); s.hookDone("railcom_address", err) {
			addr = hookAddr
		}
		s.send(client, protocol.RailComData(addr), RouteNone)

	case protocol.LocoNetFromLAN:
		if s.hookDone("loconet_send", s.hooks.LocoNetSend(c.Packet)) {
			s.send(session.Broadcast, protocol.LocoNetEcho(c.Packet), RouteClasses(bcflag.LocoNet))
		}
	case protocol.LocoNetDispatch:
		slot, err := s.hooks.LocoNetDispatch(c.Addr)
		if s.hookDone("loconet_dispatch", err) {
			s.send(client, protocol.LocoNetDispatchReply(c.Addr, slot), RouteNone)
		}
	case protocol.LocoNetDetectorQuery:
		s.hookDone("loconet_detector", s.hooks.LocoNetDetector(c.Type, c.Addr))
	case protocol.CANDetectorQuery:
		s.hookDone("can_detector", s.hooks.CANDetector(c.Type, c.ID))

	case protocol.ReadConfig:
		s.readConfig(client, c.Region)
	case protocol.WriteConfig:
		s.writeConfig(c.Region, c.Data)

	default:
		s.logger.Debug().Str("command", string(cmd.Kind())).Msg("unhandled_command")
	}
}

func (s *Station) readConfig(client session.ClientID, region protocol.ConfigRegion) {
	buf := make([]byte, region.Len())
	if _, err := s.store.ReadAt(buf, region.Offset()); err != nil {
		s.logger.Warn().Uint8("region", uint8(region)).Err(err).Msg("config_read_failed")
		return
	}
	s.send(client, protocol.ConfigData(region, buf), RouteNone)
}

func (s *Station) writeConfig(region protocol.ConfigRegion, data []byte) {
	if _, err := s.store.WriteAt(data, region.Offset()); err != nil {
		s.logger.Warn().Uint8("region", uint8(region)).Err(err).Msg("config_write_failed")
		return
	}
	s.hookDone("config_changed", s.hooks.ConfigChanged(region))
}
