// Package transport carries Z21 frames over UDP and maps remote endpoints to
// session client ids.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/z21lan/internal/observability"
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/frame"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

// DefaultPort is the Z21 LAN UDP port.
const DefaultPort = 21105

var (
	ErrUnknownClient = errors.New("transport: unknown client")
	ErrClosed        = errors.New("transport: closed")
)

// Handler consumes one frame from one client.
type Handler interface {
	Deliver(client session.ClientID, raw []byte) (protocol.Command, error)
}

type Config struct {
	Listen       string
	BindAttempts int
	Backoff      BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Listen:       fmt.Sprintf(":%d", DefaultPort),
		BindAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
		},
	}
}

// UDP is a Z21 LAN endpoint. Every remote address that sends a well-framed
// datagram gets a stable non-zero client id until the station releases it;
// the station also releases ids it refuses a session.
type UDP struct {
	conn   *net.UDPConn
	logger zerolog.Logger

	mu     sync.RWMutex
	byAddr map[netip.AddrPort]session.ClientID
	byID   map[session.ClientID]netip.AddrPort
	next   session.ClientID
	closed bool
}

// Listen binds the UDP socket, retrying with backoff while the port is busy.
func Listen(ctx context.Context, cfg Config) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", cfg.Listen, err)
	}
	attempts := max(cfg.BindAttempts, 1)
	var conn *net.UDPConn
	for attempt := 1; ; attempt++ {
		conn, err = net.ListenUDP("udp", addr)
		if err == nil {
			break
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("transport: listen %s: %w", cfg.Listen, err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("listen", cfg.Listen).Msg("bind_retry")
		if err := waitBackoff(ctx, cfg.Backoff, attempt); err != nil {
			return nil, err
		}
	}
	return newUDP(conn), nil
}

func newUDP(conn *net.UDPConn) *UDP {
	return &UDP{
		conn:   conn,
		logger: log.With().Str("component", "transport").Str("listen", conn.LocalAddr().String()).Logger(),
		byAddr: make(map[netip.AddrPort]session.ClientID),
		byID:   make(map[session.ClientID]netip.AddrPort),
	}
}

func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Serve reads datagrams until ctx ends or the socket closes. Each datagram
// may hold several frames; they are handed to h one at a time.
func (u *UDP) Serve(ctx context.Context, h Handler) error {
	go func() {
		<-ctx.Done()
		u.Close()
	}()
	u.logger.Info().Msg("udp_serving")

	buf := make([]byte, frame.MaxLen)
	for {
		n, remote, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			u.logger.Warn().Err(err).Msg("udp_read_failed")
			continue
		}
		// junk never gets an id, so broadcasts cannot reach it
		frames, err := frame.Split(buf[:n])
		if err != nil {
			observability.RecordDrop("malformed")
			u.logger.Debug().Err(err).Str("remote", remote.String()).Int("bytes", n).Msg("datagram_malformed")
			continue
		}
		client, err := u.clientFor(remote)
		if err != nil {
			u.logger.Warn().Err(err).Str("remote", remote.String()).Msg("client_id_exhausted")
			continue
		}
		for _, raw := range frames {
			// the handler may keep raw beyond this iteration
			if _, err := h.Deliver(client, append([]byte(nil), raw...)); err != nil {
				u.logger.Trace().Err(err).Uint16("client", uint16(client)).Msg("deliver")
			}
		}
	}
}

// Send writes one frame to client, or to every known client for
// session.Broadcast.
func (u *UDP) Send(client session.ClientID, raw []byte) error {
	if client == session.Broadcast {
		var errs []error
		for _, addr := range u.peers() {
			if _, err := u.conn.WriteToUDPAddrPort(raw, addr); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			}
		}
		return errors.Join(errs...)
	}
	u.mu.RLock()
	addr, ok := u.byID[client]
	u.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}
	_, err := u.conn.WriteToUDPAddrPort(raw, addr)
	return err
}

// Release forgets client; its address gets a new id on next contact.
func (u *UDP) Release(client session.ClientID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if addr, ok := u.byID[client]; ok {
		delete(u.byID, client)
		delete(u.byAddr, addr)
	}
}

// Remote returns the address bound to client.
func (u *UDP) Remote(client session.ClientID) (netip.AddrPort, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	addr, ok := u.byID[client]
	return addr, ok
}

func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	return u.conn.Close()
}

func (u *UDP) peers() []netip.AddrPort {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]netip.AddrPort, 0, len(u.byID))
	for _, addr := range u.byID {
		out = append(out, addr)
	}
	return out
}

func (u *UDP) clientFor(addr netip.AddrPort) (session.ClientID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, ErrClosed
	}
	if id, ok := u.byAddr[addr]; ok {
		return id, nil
	}
	// ids wrap but skip 0 and ids still bound
	for range 0xFFFF {
		u.next++
		if u.next == session.Broadcast {
			continue
		}
		if _, taken := u.byID[u.next]; taken {
			continue
		}
		u.byAddr[addr] = u.next
		u.byID[u.next] = addr
		return u.next, nil
	}
	return 0, fmt.Errorf("transport: no free client id for %s", addr)
}
