// Package bcflag translates between the 32-bit broadcast flag word clients
// send with LAN_SET_BROADCASTFLAGS and the 8-bit mask kept per session.
package bcflag

import "strings"

// Wire is the broadcast flag word as it appears on the wire.
type Wire uint32

const (
	WirePowerLocoTurnout Wire = 0x00000001
	WireFeedback         Wire = 0x00000002
	WireRailCom          Wire = 0x00000004
	WireSystemInfo       Wire = 0x00000100
	WireAllLocoInfo      Wire = 0x00010000
	WireCANDetector      Wire = 0x00080000
	WireLocoNet          Wire = 0x01000000
	WireLocoNetLocos     Wire = 0x02000000
	WireLocoNetSwitches  Wire = 0x04000000
	WireLocoNetDetector  Wire = 0x08000000
)

// Mask is the compact per-session subscription set.
type Mask uint8

const (
	PowerLocoTurnout Mask = 1 << iota
	Feedback
	SystemInfo
	CANDetector
	LocoNet
	LocoNetLocos
	LocoNetSwitches
	LocoNetDetector
)

type pair struct {
	mask Mask
	wire Wire
	name string
}

var table = [8]pair{
	{PowerLocoTurnout, WirePowerLocoTurnout, "power"},
	{Feedback, WireFeedback, "feedback"},
	{SystemInfo, WireSystemInfo, "systeminfo"},
	{CANDetector, WireCANDetector, "can_detector"},
	{LocoNet, WireLocoNet, "loconet"},
	{LocoNetLocos, WireLocoNetLocos, "loconet_locos"},
	{LocoNetSwitches, WireLocoNetSwitches, "loconet_switches"},
	{LocoNetDetector, WireLocoNetDetector, "loconet_detector"},
}

// Recognized is every wire bit that survives ToInternal.
const Recognized = WirePowerLocoTurnout | WireFeedback | WireSystemInfo | WireCANDetector |
	WireLocoNet | WireLocoNetLocos | WireLocoNetSwitches | WireLocoNetDetector

// ToWire expands a session mask into the wire flag word.
func ToWire(m Mask) Wire {
	var w Wire
	for _, p := range table {
		if m&p.mask != 0 {
			w |= p.wire
		}
	}
	return w
}

// ToInternal compresses a wire flag word. Bits outside Recognized are dropped.
func ToInternal(w Wire) Mask {
	var m Mask
	for _, p := range table {
		if w&p.wire != 0 {
			m |= p.mask
		}
	}
	return m
}

// Has reports whether m shares at least one class with classes.
func (m Mask) Has(classes Mask) bool {
	return m&classes != 0
}

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	names := make([]string, 0, len(table))
	for _, p := range table {
		if m&p.mask != 0 {
			names = append(names, p.name)
		}
	}
	return strings.Join(names, "|")
}
