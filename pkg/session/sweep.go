package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultMaxIdle       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Sweeper periodically removes sessions that have been idle longer than
// the configured threshold.
type Sweeper struct {
	store    *Store
	maxIdle  time.Duration
	schedule *cron.Cron
}

// SweeperConfig holds sweeper configuration.
type SweeperConfig struct {
	MaxIdle  time.Duration
	Interval time.Duration
}

// NewSweeper creates a sweeper for the given store. Start must be
// called before any sessions expire.
func NewSweeper(store *Store, cfg SweeperConfig) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}

	sw := &Sweeper{
		store:    store,
		maxIdle:  cfg.MaxIdle,
		schedule: cron.New(),
	}
	if _, err := sw.schedule.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), func() {
		sw.Sweep()
	}); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return sw, nil
}

// Start begins the periodic sweep.
func (sw *Sweeper) Start() {
	sw.schedule.Start()
}

// Stop halts the periodic sweep and waits for an in-flight run.
func (sw *Sweeper) Stop() {
	ctx := sw.schedule.Stop()
	<-ctx.Done()
}

// Sweep runs one expiry pass and returns the number of sessions removed.
func (sw *Sweeper) Sweep() int {
	return sw.store.expire(sw.maxIdle)
}
