package gatttest

import (
	"math/rand"
	"sync"
	"time"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
)

// LinkConfig controls how unreliable a simulated link is
type LinkConfig struct {
	PacketLossRate float64 // fraction of written PDUs silently dropped
	MinDelay       time.Duration
	MaxDelay       time.Duration
	Seed           int64 // zero picks a time based seed
}

// DefaultLinkConfig is a mildly lossy radio link: 1.5% loss, 5-20ms latency.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		PacketLossRate: 0.015,
		MinDelay:       5 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
	}
}

// Link wraps the peer side of a transport and delays or drops what the peer
// writes. Reads pass through.
type Link struct {
	wire.Transport
	cfg LinkConfig

	mu      sync.Mutex
	rng     *rand.Rand
	dropped int
}

// NewLink wraps t
func NewLink(t wire.Transport, cfg LinkConfig) *Link {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Link{Transport: t, cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Dropped returns how many PDUs were lost so far
func (l *Link) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Link) Write(b []byte) (int, error) {
	l.mu.Lock()
	lost := l.rng.Float64() < l.cfg.PacketLossRate
	delay := l.cfg.MinDelay
	if span := l.cfg.MaxDelay - l.cfg.MinDelay; span > 0 {
		delay += time.Duration(l.rng.Int63n(int64(span)))
	}
	if lost {
		l.dropped++
	}
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if lost {
		logger.Debug("LINK", "dropped %d byte PDU", len(b))
		return len(b), nil
	}
	return l.Transport.Write(b)
}
