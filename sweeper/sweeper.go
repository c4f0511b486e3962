// Package sweeper terminates instances that have stayed stopped beyond
// the retention window recorded in their StopTime tag.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StoppedInstance is a stopped instance carrying a stop-time tag.
type StoppedInstance struct {
	ID       string
	StopTime string
}

// InstanceAPI covers the provider operations the sweeper needs. The
// listing must filter on stopped state AND tag presence at the API
// level; the tag is the only signal separating monitor-initiated stops
// from manual ones.
type InstanceAPI interface {
	ListStoppedTagged(ctx context.Context, tagKey string) ([]StoppedInstance, error)
	TerminateInstance(ctx context.Context, id string) error
}

// Config holds sweeper settings.
type Config struct {
	RetentionDays int
	TagKey        string
	CallTimeout   time.Duration
	// DryRun reports what would be terminated without acting.
	DryRun bool
}

// Summary reports one sweep invocation. Per-instance failures live in
// FailedTerminations; they never abort the sweep.
type Summary struct {
	CheckedInstances    int      `json:"checked_instances"`
	TerminatedInstances []string `json:"terminated_instances"`
	FailedTerminations  []string `json:"failed_terminations"`
	DryRun              bool     `json:"dry_run,omitempty"`
}

// Sweeper is a short-lived, idempotent invocation: already-terminated
// instances no longer match the stopped-state filter and simply vanish
// from the next listing.
type Sweeper struct {
	cfg    Config
	api    InstanceAPI
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a sweeper.
func New(cfg Config, api InstanceAPI, logger zerolog.Logger) *Sweeper {
	if cfg.TagKey == "" {
		cfg.TagKey = "StopTime"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Sweeper{
		cfg:    cfg,
		api:    api,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep lists eligible instances and terminates those stopped for at
// least the retention threshold, in whole days.
func (s *Sweeper) Sweep(ctx context.Context) (*Summary, error) {
	instances, err := s.api.ListStoppedTagged(ctx, s.cfg.TagKey)
	if err != nil {
		return nil, fmt.Errorf("list stopped instances: %w", err)
	}

	summary := &Summary{
		CheckedInstances:    len(instances),
		TerminatedInstances: []string{},
		FailedTerminations:  []string{},
		DryRun:              s.cfg.DryRun,
	}

	now := s.now().UTC()
	for _, inst := range instances {
		s.sweepInstance(ctx, inst, now, summary)
	}

	s.logger.Info().
		Int("checked", summary.CheckedInstances).
		Strs("terminated", summary.TerminatedInstances).
		Strs("failed", summary.FailedTerminations).
		Bool("dry_run", summary.DryRun).
		Msg("sweep complete")
	return summary, nil
}

func (s *Sweeper) sweepInstance(ctx context.Context, inst StoppedInstance, now time.Time, summary *Summary) {
	stopTime, err := ParseStopTime(inst.StopTime)
	if err != nil {
		// Never terminate on unparseable data.
		s.logger.Warn().
			Str("instance_id", inst.ID).
			Str("stop_time", inst.StopTime).
			Err(err).
			Msg("invalid StopTime tag, skipping")
		return
	}

	days := daysStopped(stopTime, now)
	s.logger.Info().
		Str("instance_id", inst.ID).
		Int("days_stopped", days).
		Msg("checked stopped instance")

	if days < s.cfg.RetentionDays {
		return
	}

	if s.cfg.DryRun {
		s.logger.Info().Str("instance_id", inst.ID).Msg("would terminate (dry run)")
		summary.TerminatedInstances = append(summary.TerminatedInstances, inst.ID)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if err := s.api.TerminateInstance(tctx, inst.ID); err != nil {
		s.logger.Error().
			Str("instance_id", inst.ID).
			Err(err).
			Msg("terminate failed")
		summary.FailedTerminations = append(summary.FailedTerminations, inst.ID)
		return
	}

	s.logger.Info().Str("instance_id", inst.ID).Msg("termination initiated")
	summary.TerminatedInstances = append(summary.TerminatedInstances, inst.ID)
}

// ParseStopTime parses a StopTime tag value. RFC 3339 is what the
// monitor writes; the zone-less form is accepted for tags written by
// hand and read as UTC.
func ParseStopTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
}

// daysStopped floors the stopped duration to whole days.
func daysStopped(stopTime, now time.Time) int {
	d := now.Sub(stopTime)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
