package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/connector"
)

// SessionReaper periodically drops harness sessions that have gone
// idle, releasing their connectors.
type SessionReaper struct {
	registry *connector.Registry
	idleTTL  time.Duration
	interval time.Duration
	done     chan struct{}
}

func NewSessionReaper(registry *connector.Registry, idleTTL, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		registry: registry,
		idleTTL:  idleTTL,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SessionReaper) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("idle_ttl", j.idleTTL).Msg("session reaper started")
}

func (j *SessionReaper) Stop() {
	close(j.done)
	log.Info().Msg("session reaper stopped")
}

func (j *SessionReaper) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if reaped := j.registry.ReapIdle(j.idleTTL); reaped > 0 {
				log.Info().Int("count", reaped).Msg("expired idle sessions")
			}
		case <-j.done:
			return
		}
	}
}
