package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	. "github.com/vgrebnev/teleassist/internal/logging"
)

// Sweeper periodically evicts idle sessions from a registry. It runs off
// the request path; a slow backend delete delays at most the current sweep,
// never message handling.
type Sweeper struct {
	registry *Registry
	maxIdle  time.Duration
	cron     *cron.Cron
}

// NewSweeper schedules an eviction sweep every interval.
func NewSweeper(registry *Registry, maxIdle, interval time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		registry: registry,
		maxIdle:  maxIdle,
		cron:     cron.New(),
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule eviction sweep: %w", err)
	}

	return s, nil
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	L_info("session: eviction sweeper started", "maxIdle", s.maxIdle.String())
}

// Stop halts the sweep schedule. A sweep already in progress finishes.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) sweep() {
	evicted := s.registry.EvictExpired(context.Background(), time.Now(), s.maxIdle)
	for _, key := range evicted {
		L_info("session: evicted idle session", "key", key.String())
	}
}
