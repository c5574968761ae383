package session

import (
	"fmt"
	"strings"
	"time"
)

// EvictionPolicy decides what happens when a new client finds no free slot.
type EvictionPolicy string

const (
	// EvictLRU drops the least recently touched session.
	EvictLRU EvictionPolicy = "lru"
	// EvictReject refuses the new client with ErrTableFull.
	EvictReject EvictionPolicy = "reject"
)

// Config defines table capacity and liveness defaults.
type Config struct {
	Capacity     int
	Liveness     uint8
	TickInterval time.Duration
	Eviction     EvictionPolicy
}

// DefaultConfig mirrors a Z21: 30 clients, expired after 20 ticks of 2s.
func DefaultConfig() Config {
	return Config{
		Capacity:     30,
		Liveness:     20,
		TickInterval: 2 * time.Second,
		Eviction:     EvictLRU,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.Liveness == 0 {
		c.Liveness = def.Liveness
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if strings.TrimSpace(string(c.Eviction)) == "" {
		c.Eviction = def.Eviction
	}
	return c
}

// Window is how long a silent client stays subscribed.
func (c Config) Window() time.Duration {
	return time.Duration(c.Liveness) * c.TickInterval
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("session: capacity must be positive, got %d", c.Capacity)
	}
	if c.Liveness == 0 {
		return fmt.Errorf("session: liveness must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("session: tick interval must be positive, got %v", c.TickInterval)
	}
	switch c.Eviction {
	case EvictLRU, EvictReject:
		return nil
	default:
		return fmt.Errorf("session: unknown eviction policy %q", c.Eviction)
	}
}
