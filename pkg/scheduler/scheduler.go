// Package scheduler fires library scans on a wall-clock schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/scanner"
	"github.com/robinjoseph08/golib/logger"
)

type Scheduler struct {
	cfg     *config.Config
	scanner *scanner.Scanner
}

func New(cfg *config.Config, sc *scanner.Scanner) *Scheduler {
	return &Scheduler{cfg: cfg, scanner: sc}
}

// Start blocks until ctx is cancelled, waking at every minute boundary and
// launching a scan when the current time matches the configured schedule.
func (s *Scheduler) Start(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("scheduler started", logger.Data{
		"minutes":     s.cfg.Scanner.ScheduleMinutes,
		"hours":       s.cfg.Scanner.ScheduleHours,
		"day_of_week": s.cfg.Scanner.ScheduleDayOfWeek,
	})

	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)

		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-time.After(next.Sub(now)):
		}

		if !s.matches(next) {
			continue
		}

		go func() {
			if _, err := s.scanner.Run(ctx); err != nil {
				if errcodes.IsCode(err, "already_running") {
					log.Warn("scheduled scan skipped, previous scan still running")
					return
				}
				log.Err(err).Error("scheduled scan failed")
			}
		}()
	}
}

// matches reports whether t hits the configured schedule. An empty list acts
// as a wildcard for its field. Days run Monday=1 through Sunday=7.
func (s *Scheduler) matches(t time.Time) bool {
	cfg := s.cfg.Scanner
	return containsOrEmpty(cfg.ScheduleMinutes, t.Minute()) &&
		containsOrEmpty(cfg.ScheduleHours, t.Hour()) &&
		containsOrEmpty(cfg.ScheduleDayOfWeek, isoWeekday(t))
}

// isoWeekday converts Go's Sunday-based weekday to ISO numbering.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func containsOrEmpty(list []int, v int) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
