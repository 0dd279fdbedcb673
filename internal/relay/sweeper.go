package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically evicts sessions that have outlived the idle retention
// window without a close event from the transport. Evicted sessions go
// through the same teardown as an explicit disconnect.
type Sweeper struct {
	relay    *Relay
	interval time.Duration
	ttl      time.Duration
	log      zerolog.Logger
}

// NewSweeper returns a sweeper that checks every interval for sessions idle
// longer than ttl.
func NewSweeper(r *Relay, interval, ttl time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		relay:    r,
		interval: interval,
		ttl:      ttl,
		log:      log.With().Str("component", "sweeper").Logger(),
	}
}

// Run blocks sweeping on the configured interval until ctx is canceled.
// It is meant to run on its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("ttl", s.ttl).
		Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if n := s.relay.EvictIdle(s.ttl); n > 0 {
				s.log.Info().Int("evicted", n).Msg("sweep completed")
			}
		}
	}
}
