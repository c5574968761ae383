package station

import (
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

// Power returns the last track power state set by the domain.
func (s *Station) Power() protocol.PowerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.power
}

// SetPower records the track power state and announces it to power
// subscribers.
func (s *Station) SetPower(state protocol.PowerState) {
	s.mu.Lock()
	s.power = state
	s.mu.Unlock()
	s.logger.Info().Stringer("power", state).Msg("track_power")
	s.send(session.Broadcast, protocol.TrackPower(state), RouteClasses(bcflag.PowerLocoTurnout))
}

// SetLocoState reports a locomotive's full state, either to every
// loco subscriber or only to the client whose request is being handled.
func (s *Station) SetLocoState(state protocol.LocoState, broadcast bool) {
	route := RouteNone
	if broadcast {
		route = RouteClasses(bcflag.PowerLocoTurnout)
	}
	s.send(session.Broadcast, protocol.LocoInfo(state), route)
}

// SetFeedback pushes one R-Bus group: the group index followed by ten
// module bytes.
func (s *Station) SetFeedback(data []byte) {
	s.send(session.Broadcast, protocol.FeedbackData(data), RouteClasses(bcflag.Feedback))
}

func (s *Station) SetLocoNetDetector(data []byte) {
	s.send(session.Broadcast, protocol.LocoNetDetectorData(data), RouteClasses(bcflag.LocoNetDetector))
}

// SetLocoNetMessage forwards a LocoNet packet to subscribers of classes. tx
// marks packets the station itself put on the bus.
func (s *Station) SetLocoNetMessage(packet []byte, classes bcflag.Mask, tx bool) {
	if classes == 0 {
		classes = bcflag.LocoNet
	}
	s.send(session.Broadcast, protocol.LocoNetMessage(packet, tx), RouteClasses(classes))
}

func (s *Station) SetCANDetector(d protocol.CANDetector) {
	s.send(session.Broadcast, protocol.CANDetectorData(d), RouteClasses(bcflag.CANDetector))
}

func (s *Station) SetTurnoutInfo(addr uint16, thrown bool) {
	s.send(session.Broadcast, protocol.TurnoutInfo(addr, thrown), RouteAll)
}

func (s *Station) SetCVResult(cv uint16, value byte) {
	s.send(session.Broadcast, protocol.CVResult(cv, value), RouteAll)
}

// SetPOMResult answers a POM read to the requesting client.
func (s *Station) SetPOMResult(cv uint16, value byte) {
	s.send(session.Broadcast, protocol.POMResult(cv, value), RouteNone)
}

func (s *Station) SetCVNack() {
	s.send(session.Broadcast, protocol.CVNack(), RouteAll)
}

func (s *Station) SetCVShortCircuit() {
	s.send(session.Broadcast, protocol.CVShortCircuit(), RouteAll)
}

// SendSystemState publishes telemetry to client, if non-zero, and to every
// system-info subscriber. Currents are mA, voltage mV, temperature degrees C.
func (s *Station) SendSystemState(client session.ClientID, current int16, voltage uint16, temperature int16) {
	msg := protocol.SystemStateChanged(protocol.SystemState{
		MainCurrent:         current,
		ProgCurrent:         current,
		FilteredMainCurrent: current,
		Temperature:         temperature,
		SupplyVoltage:       voltage,
		VCCVoltage:          voltage,
		CentralState:        s.Power(),
	})
	if client != session.Broadcast {
		s.send(client, msg, RouteNone)
	}
	s.send(session.Broadcast, msg, RouteClasses(bcflag.SystemInfo))
}
