package station

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/frame"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

type sentFrame struct {
	client session.ClientID
	raw    []byte
}

type recordingTransport struct {
	mu       sync.Mutex
	sent     []sentFrame
	released []session.ClientID
}

func (r *recordingTransport) Send(client session.ClientID, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentFrame{client: client, raw: append([]byte(nil), raw...)})
	return nil
}

func (r *recordingTransport) Release(client session.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, client)
}

// take returns and clears the recorded frames.
func (r *recordingTransport) take() []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func (r *recordingTransport) to(client session.ClientID) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, f := range r.sent {
		if f.client == client {
			out = append(out, f.raw)
		}
	}
	return out
}

type hookCall struct {
	name string
	args []any
}

type recordingHooks struct {
	UnimplementedHooks
	calls []hookCall

	onSetTrackPower func(protocol.PowerState) error
	onGetLocoState  func(uint16) error
	accessory       map[uint16]bool
	dispatchSlot    *byte
}

func (h *recordingHooks) record(name string, args ...any) {
	h.calls = append(h.calls, hookCall{name: name, args: args})
}

func (h *recordingHooks) named(name string) []hookCall {
	var out []hookCall
	for _, c := range h.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (h *recordingHooks) SetTrackPower(state protocol.PowerState) error {
	h.record("set_track_power", state)
	if h.onSetTrackPower != nil {
		return h.onSetTrackPower(state)
	}
	return nil
}

func (h *recordingHooks) ReadPOMByte(addr, cv uint16) error {
	h.record("read_pom_byte", addr, cv)
	return nil
}

func (h *recordingHooks) GetLocoState(addr uint16) error {
	h.record("get_loco_state", addr)
	if h.onGetLocoState != nil {
		return h.onGetLocoState(addr)
	}
	return nil
}

func (h *recordingHooks) AccessoryInfo(addr uint16) (bool, error) {
	h.record("accessory_info", addr)
	thrown, ok := h.accessory[addr]
	if !ok {
		return false, ErrNotImplemented
	}
	return thrown, nil
}

func (h *recordingHooks) LocoNetSend(packet []byte) error {
	h.record("loconet_send", packet)
	return nil
}

func (h *recordingHooks) LocoNetDispatch(addr uint16) (byte, error) {
	h.record("loconet_dispatch", addr)
	if h.dispatchSlot == nil {
		return 0, ErrNotImplemented
	}
	return *h.dispatchSlot, nil
}

func (h *recordingHooks) ConfigChanged(region protocol.ConfigRegion) error {
	h.record("config_changed", region)
	return nil
}

func packet(t *testing.T, opcode uint16, payload ...byte) []byte {
	t.Helper()
	raw, err := frame.Encode(opcode, payload, false)
	require.NoError(t, err)
	return raw
}

func xpacket(t *testing.T, body ...byte) []byte {
	t.Helper()
	raw, err := frame.Encode(protocol.OpXBus, body, true)
	require.NoError(t, err)
	return raw
}

func encoded(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	raw, err := msg.Encode()
	require.NoError(t, err)
	return raw
}

func subscribe(t *testing.T, wire uint32) []byte {
	t.Helper()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, wire)
	return packet(t, protocol.OpSetBroadcastFlags, buf...)
}

func newTestStation(t *testing.T, hooks Hooks) (*Station, *recordingTransport) {
	t.Helper()
	tr := &recordingTransport{}
	cfg := DefaultConfig()
	st := New(cfg, tr, Options{Hooks: hooks})
	return st, tr
}

func deliver(t *testing.T, st *Station, client session.ClientID, raw []byte) protocol.Command {
	t.Helper()
	cmd, err := st.Deliver(client, raw)
	require.NoError(t, err)
	return cmd
}
