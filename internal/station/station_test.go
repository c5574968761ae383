package station

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/testutil/testlog"
)

const (
	clientA session.ClientID = 1
	clientB session.ClientID = 2
)

func TestNewSessionGetsPowerAnnouncementOnce(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)

	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	sent := tr.take()
	require.Len(t, sent, 2)
	assert.Equal(t, encoded(t, protocol.TrackPower(protocol.PowerOff)), sent[0].raw)
	assert.Equal(t, []byte{0x08, 0x00, 0x10, 0x00, 0xf5, 0x1a, 0x00, 0x00}, sent[1].raw)

	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	assert.Len(t, tr.take(), 1)
}

func TestSubscribedClientReceivesPowerChange(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)

	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WirePowerLocoTurnout)))
	sent := tr.take()
	require.Len(t, sent, 1, "subscribe pushes power exactly once")
	assert.Equal(t, clientA, sent[0].client)
	assert.Equal(t, []byte{0x07, 0x00, 0x40, 0x00, 0x61, 0x00, 0x61}, sent[0].raw)

	deliver(t, st, clientB, packet(t, protocol.OpGetSerialNumber))
	tr.take()

	st.SetPower(protocol.PowerOff)
	assert.Len(t, tr.to(clientA), 1)
	assert.Empty(t, tr.to(clientB))
	assert.Empty(t, tr.to(session.Broadcast))
}

func TestResubscribeOnExistingSessionAnnouncesPower(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	st.SetPower(protocol.PowerOn)

	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	tr.take()
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WirePowerLocoTurnout|bcflag.WireFeedback)))
	sent := tr.take()
	require.Len(t, sent, 1)
	assert.Equal(t, encoded(t, protocol.TrackPower(protocol.PowerOn)), sent[0].raw)

	sess, ok := st.table.Get(clientA)
	require.True(t, ok)
	assert.Equal(t, bcflag.PowerLocoTurnout|bcflag.Feedback, sess.Mask)
}

func TestGetBroadcastFlagsReturnsWireMask(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	flags := bcflag.WirePowerLocoTurnout | bcflag.WireSystemInfo | bcflag.WireRailCom
	deliver(t, st, clientA, subscribe(t, uint32(flags)))
	tr.take()

	deliver(t, st, clientA, packet(t, protocol.OpGetBroadcastFlags))
	sent := tr.take()
	require.Len(t, sent, 1)
	// RailCom is not a recognized class and is dropped
	want := encoded(t, protocol.BroadcastFlagsReply(bcflag.WirePowerLocoTurnout|bcflag.WireSystemInfo))
	assert.Equal(t, want, sent[0].raw)
}

func TestPOMReadCallsHookWithoutReply(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{}
	st, tr := newTestStation(t, hooks)
	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	tr.take()

	cmd := deliver(t, st, clientA, xpacket(t, 0xe6, 0x30, 0x00, 0x03, 0xe4, 0x1d, 0x00))
	assert.Equal(t, protocol.POMReadByte{Addr: 3, CV: 29}, cmd)
	calls := hooks.named("read_pom_byte")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{uint16(3), uint16(29)}, calls[0].args)
	assert.Empty(t, tr.take())
}

func TestHookAnswersGoToRequester(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{}
	st, tr := newTestStation(t, hooks)
	hooks.onGetLocoState = func(addr uint16) error {
		st.SetLocoState(protocol.LocoState{Addr: addr, Steps: protocol.Steps128, Speed: 0x10}, false)
		return nil
	}
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WirePowerLocoTurnout)))
	deliver(t, st, clientB, packet(t, protocol.OpGetSerialNumber))
	tr.take()

	deliver(t, st, clientB, xpacket(t, 0xe3, 0xf0, 0x00, 0x03))
	sent := tr.take()
	require.Len(t, sent, 1)
	assert.Equal(t, clientB, sent[0].client)
	assert.Equal(t, encoded(t, protocol.LocoInfo(protocol.LocoState{Addr: 3, Steps: protocol.Steps128, Speed: 0x10})), sent[0].raw)

	// outside a request a unicast push has nowhere to go
	st.SetLocoState(protocol.LocoState{Addr: 3}, false)
	assert.Empty(t, tr.take())

	st.SetLocoState(protocol.LocoState{Addr: 3}, true)
	sent = tr.take()
	require.Len(t, sent, 1)
	assert.Equal(t, clientA, sent[0].client)
}

func TestPowerHookDrivesBroadcast(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{}
	st, tr := newTestStation(t, hooks)
	hooks.onSetTrackPower = func(state protocol.PowerState) error {
		st.SetPower(state)
		return nil
	}
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WirePowerLocoTurnout)))
	tr.take()

	deliver(t, st, clientA, xpacket(t, 0x21, 0x81))
	assert.Equal(t, protocol.PowerOn, st.Power())
	assert.Equal(t, [][]byte{encoded(t, protocol.TrackPower(protocol.PowerOn))}, tr.to(clientA))
	tr.take()

	deliver(t, st, clientA, xpacket(t, 0x80))
	assert.Equal(t, protocol.PowerEmergencyStop, st.Power())
	assert.Equal(t, [][]byte{{0x07, 0x00, 0x40, 0x00, 0x81, 0x00, 0x81}}, tr.to(clientA))

	calls := hooks.named("set_track_power")
	require.Len(t, calls, 2)
	assert.Equal(t, protocol.PowerEmergencyStop, calls[1].args[0])
}

func TestDirectRepliesWithoutHooks(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	tr.take()

	cases := []struct {
		name string
		in   []byte
		want protocol.Message
	}{
		{"hwinfo", packet(t, protocol.OpGetHardwareInfo), protocol.HardwareInfoReply(0x0201, 0x0130)},
		{"code", packet(t, protocol.OpGetCode), protocol.CodeReply(0)},
		{"version", xpacket(t, 0x21, 0x21), protocol.VersionReply()},
		{"status", xpacket(t, 0x21, 0x24), protocol.StatusReply(protocol.PowerOff)},
		{"firmware", xpacket(t, 0xf1, 0x0a), protocol.FirmwareVersionReply(0x0130)},
		{"loco mode", packet(t, protocol.OpGetLocoMode, 0x00, 0x03), protocol.LocoModeReply(3, 0)},
		{"turnout mode", packet(t, protocol.OpGetTurnoutMode, 0x00, 0x05), protocol.TurnoutModeReply(5, 0)},
		{"railcom", packet(t, protocol.OpRailComGetData, 0x01, 0x03, 0x00), protocol.RailComData(3)},
		{"system state", packet(t, protocol.OpSystemStateGetData), protocol.SystemStateChanged(protocol.SystemState{CentralState: protocol.PowerOff})},
	}
	for _, tc := range cases {
		deliver(t, st, clientA, tc.in)
		sent := tr.take()
		require.Len(t, sent, 1, tc.name)
		assert.Equal(t, clientA, sent[0].client, tc.name)
		assert.Equal(t, encoded(t, tc.want), sent[0].raw, tc.name)
	}

	// hook-only requests stay silent when nothing is bound
	for _, raw := range [][]byte{
		xpacket(t, 0x23, 0x11, 0x00, 0x1c),
		xpacket(t, 0x43, 0x00, 0x05),
		packet(t, protocol.OpLocoNetDispatchAddr, 0x03, 0x00),
		packet(t, protocol.OpRBusGetData, 0x00),
		packet(t, protocol.OpSetLocoMode, 0x00, 0x03, 0x01),
	} {
		deliver(t, st, clientA, raw)
	}
	assert.Empty(t, tr.take())
}

func TestUnsupportedCommands(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	deliver(t, st, clientA, packet(t, protocol.OpGetSerialNumber))
	tr.take()

	cmd, err := st.Deliver(clientA, xpacket(t, 0x99, 0x01))
	require.ErrorIs(t, err, protocol.ErrUnsupported)
	assert.Equal(t, protocol.Unsupported{Opcode: protocol.OpXBus, Extended: true, XHeader: 0x99}, cmd)
	assert.Equal(t, [][]byte{{0x07, 0x00, 0x40, 0x00, 0x61, 0x82, 0xe3}}, tr.to(clientA))
	tr.take()

	_, err = st.Deliver(clientA, packet(t, 0x00ee))
	require.ErrorIs(t, err, protocol.ErrUnsupported)
	assert.Empty(t, tr.take())
}

func TestMalformedPacketsAreDropped(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)

	good := packet(t, protocol.OpGetSerialNumber)
	_, err := st.Deliver(clientA, append(good, 0x00))
	require.ErrorIs(t, err, protocol.ErrMalformed)
	_, err = st.Deliver(clientA, []byte{0x04})
	require.ErrorIs(t, err, protocol.ErrMalformed)
	assert.Empty(t, tr.take())
	assert.Empty(t, st.Sessions(), "garbage must not open a session")
	assert.Equal(t, []session.ClientID{clientA, clientA}, tr.released)

	// well framed but too short for its command
	_, err = st.Deliver(clientA, packet(t, protocol.OpSetBroadcastFlags, 0x01))
	require.ErrorIs(t, err, protocol.ErrMalformed)

	bad := xpacket(t, 0x21, 0x24)
	bad[len(bad)-1] ^= 0xff
	tr.take()
	_, err = st.Deliver(clientA, bad)
	require.ErrorIs(t, err, protocol.ErrMalformed)
	assert.Empty(t, tr.take())

	// a live session keeps its binding through garbage
	_, err = st.Deliver(clientA, []byte{0x04})
	require.ErrorIs(t, err, protocol.ErrMalformed)
	assert.Len(t, tr.released, 2)
}

func TestLogoffRemovesSessionImmediately(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WirePowerLocoTurnout)))
	deliver(t, st, clientA, packet(t, protocol.OpLogoff))
	tr.take()

	assert.Empty(t, st.Sessions())
	assert.Equal(t, []session.ClientID{clientA}, tr.released)
	st.SetPower(protocol.PowerOn)
	assert.Empty(t, tr.take())
}

func TestSilentSessionExpires(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WireFeedback)))
	deliver(t, st, clientB, subscribe(t, uint32(bcflag.WireFeedback)))
	tr.take()

	liveness := int(st.Config().Session.Liveness)
	for i := 0; i < liveness*3; i++ {
		st.Tick()
		if i%liveness == 0 {
			deliver(t, st, clientB, packet(t, protocol.OpGetCode))
		}
	}
	tr.take()

	st.SetFeedback([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	assert.Empty(t, tr.to(clientA))
	assert.Len(t, tr.to(clientB), 1)
	assert.Contains(t, tr.released, clientA)
}

func TestAllRouteSendsOnceToBroadcast(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{accessory: map[uint16]bool{5: true}}
	st, tr := newTestStation(t, hooks)
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WireFeedback)))
	deliver(t, st, clientB, packet(t, protocol.OpGetCode))
	tr.take()

	deliver(t, st, clientB, xpacket(t, 0x43, 0x00, 0x05))
	sent := tr.take()
	require.Len(t, sent, 1)
	assert.Equal(t, session.Broadcast, sent[0].client)
	assert.Equal(t, encoded(t, protocol.TurnoutInfo(5, true)), sent[0].raw)

	st.SetCVResult(29, 0x06)
	st.SetCVNack()
	st.SetCVShortCircuit()
	for _, f := range tr.take() {
		assert.Equal(t, session.Broadcast, f.client)
	}
}

func TestClassRoutesFollowSubscriptions(t *testing.T) {
	testlog.Start(t)
	st, tr := newTestStation(t, nil)
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WireCANDetector|bcflag.WireLocoNetDetector)))
	deliver(t, st, clientB, subscribe(t, uint32(bcflag.WireSystemInfo|bcflag.WireLocoNet)))
	tr.take()

	st.SetCANDetector(protocol.CANDetector{NetworkID: 0xc101, Addr: 1, Port: 1, Type: 1, Value1: 0x1100})
	st.SetLocoNetDetector([]byte{0x01, 0x10, 0x00, 0x01})
	assert.Len(t, tr.to(clientA), 2)
	assert.Empty(t, tr.to(clientB))
	tr.take()

	st.SetLocoNetMessage([]byte{0x83, 0x7c}, 0, false)
	st.SendSystemState(session.Broadcast, 120, 18000, 35)
	assert.Empty(t, tr.to(clientA))
	assert.Len(t, tr.to(clientB), 2)
	tr.take()

	// explicit telemetry request reaches the requester as well
	st.SendSystemState(clientA, 120, 18000, 35)
	assert.Len(t, tr.to(clientA), 1)
	assert.Len(t, tr.to(clientB), 1)
}

func TestLocoNetEchoAfterSend(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{}
	st, tr := newTestStation(t, hooks)
	deliver(t, st, clientA, subscribe(t, uint32(bcflag.WireLocoNet)))
	deliver(t, st, clientB, packet(t, protocol.OpGetCode))
	tr.take()

	deliver(t, st, clientB, packet(t, protocol.OpLocoNetFromLAN, 0x83, 0x7c))
	require.Len(t, hooks.named("loconet_send"), 1)
	assert.Equal(t, [][]byte{encoded(t, protocol.LocoNetEcho([]byte{0x83, 0x7c}))}, tr.to(clientA))
	assert.Empty(t, tr.to(clientB))
}

func TestLocoNetDispatchReply(t *testing.T) {
	testlog.Start(t)
	slot := byte(0x07)
	hooks := &recordingHooks{dispatchSlot: &slot}
	st, tr := newTestStation(t, hooks)
	deliver(t, st, clientA, packet(t, protocol.OpGetCode))
	tr.take()

	deliver(t, st, clientA, packet(t, protocol.OpLocoNetDispatchAddr, 0x03, 0x00))
	assert.Equal(t, [][]byte{{0x07, 0x00, 0xa3, 0x00, 0x03, 0x00, 0x07}}, tr.to(clientA))
}

func TestConfigRegionsRoundTrip(t *testing.T) {
	testlog.Start(t)
	hooks := &recordingHooks{}
	st, tr := newTestStation(t, hooks)
	deliver(t, st, clientA, packet(t, protocol.OpGetCode))
	tr.take()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	deliver(t, st, clientA, packet(t, protocol.OpConfig2Write, data...))
	assert.Empty(t, tr.take())
	calls := hooks.named("config_changed")
	require.Len(t, calls, 1)
	assert.Equal(t, protocol.ConfigRegion2, calls[0].args[0])

	deliver(t, st, clientA, packet(t, protocol.OpConfig2Read))
	assert.Equal(t, [][]byte{encoded(t, protocol.ConfigData(protocol.ConfigRegion2, data))}, tr.to(clientA))
	tr.take()

	deliver(t, st, clientA, packet(t, protocol.OpConfig1Read))
	assert.Equal(t, [][]byte{encoded(t, protocol.ConfigData(protocol.ConfigRegion1, make([]byte, 10)))}, tr.to(clientA))
}

func TestCapacityExhaustion(t *testing.T) {
	testlog.Start(t)
	for _, policy := range []session.EvictionPolicy{session.EvictLRU, session.EvictReject} {
		tr := &recordingTransport{}
		cfg := DefaultConfig()
		cfg.Session.Eviction = policy
		st := New(cfg, tr, Options{})

		for id := session.ClientID(1); id <= 30; id++ {
			deliver(t, st, id, subscribe(t, uint32(bcflag.WirePowerLocoTurnout)))
		}
		_, err := st.Deliver(31, packet(t, protocol.OpGetSerialNumber))
		tr.take()

		if policy == session.EvictReject {
			require.ErrorIs(t, err, session.ErrTableFull, policy)
			assert.Len(t, st.Sessions(), 30)
			// the refused client must not keep a transport binding
			assert.Equal(t, []session.ClientID{31}, tr.released)
		} else {
			require.NoError(t, err, policy)
			assert.Len(t, st.Sessions(), 30)
			assert.Equal(t, []session.ClientID{1}, tr.released)
		}

		st.SetPower(protocol.PowerOn)
		for id := session.ClientID(2); id <= 30; id++ {
			assert.Len(t, tr.to(id), 1, "client %d under %s", id, policy)
		}
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	testlog.Start(t)
	tr := &recordingTransport{}
	cfg := DefaultConfig()
	cfg.Session.Liveness = 1
	cfg.Session.TickInterval = 5 * time.Millisecond
	st := New(cfg, tr, Options{})
	deliver(t, st, clientA, packet(t, protocol.OpGetCode))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	require.Eventually(t, func() bool { return len(st.Sessions()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}
