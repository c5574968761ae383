package station

import (
	"github.com/danmuck/z21lan/internal/observability"
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

type routeKind uint8

const (
	routeNone routeKind = iota
	routeAll
	routeClasses
)

// Route selects the recipients of an outbound message.
type Route struct {
	kind    routeKind
	classes bcflag.Mask
}

var (
	// RouteNone sends to one explicit client, or to the current requester.
	RouteNone = Route{kind: routeNone}
	// RouteAll sends once to the broadcast client, ignoring subscriptions.
	RouteAll = Route{kind: routeAll}
)

// RouteClasses sends to every live session subscribed to any of classes.
func RouteClasses(classes bcflag.Mask) Route {
	return Route{kind: routeClasses, classes: classes}
}

func (r Route) String() string {
	switch r.kind {
	case routeAll:
		return "all"
	case routeClasses:
		return "classes"
	default:
		return "none"
	}
}

// send encodes msg once and hands it to the transport per recipient. It
// returns the number of frames sent.
func (s *Station) send(to session.ClientID, msg protocol.Message, route Route) int {
	raw, err := msg.Encode()
	if err != nil {
		s.logger.Error().Uint16("opcode", msg.Opcode).Err(err).Msg("encode_failed")
		return 0
	}

	sent := 0
	switch route.kind {
	case routeAll:
		if s.deliver(session.Broadcast, raw) {
			sent++
		}
	case routeClasses:
		for client := range s.table.Subscribers(route.classes) {
			if s.deliver(client, raw) {
				sent++
			}
		}
	default:
		if to == session.Broadcast {
			to = s.currentRequester()
		}
		if to == session.Broadcast {
			s.logger.Debug().Uint16("opcode", msg.Opcode).Msg("unicast_without_requester")
			return 0
		}
		if s.deliver(to, raw) {
			sent++
		}
	}
	observability.RecordFramesOut(route.String(), sent)
	return sent
}

func (s *Station) deliver(client session.ClientID, raw []byte) bool {
	if s.transport == nil {
		return false
	}
	s.observe(Outbound, client, raw)
	if err := s.transport.Send(client, raw); err != nil {
		observability.RecordSendError()
		s.logger.Warn().Uint16("client", uint16(client)).Err(err).Msg("send_failed")
		return false
	}
	return true
}

func (s *Station) currentRequester() session.ClientID {
	return session.ClientID(s.requester.Load())
}
