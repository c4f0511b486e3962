// Package monitor watches a game server for player activity and stops
// its instance once the configured inactivity threshold is reached.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StopTimeTag is the tag key recording when the monitor stopped the
// instance. The sweeper keys termination eligibility off it.
const StopTimeTag = "StopTime"

// State tracks the monitor's position in its lifecycle.
type State int

const (
	// StateMonitoring means the loop is still sampling activity.
	StateMonitoring State = iota
	// StateSuspended means the stop action was issued; the loop is done.
	StateSuspended
)

// ActivitySource reports the current number of active players.
type ActivitySource interface {
	PlayerCount(ctx context.Context) (int, error)
}

// InstanceControl covers the provider actions the monitor needs.
type InstanceControl interface {
	TagInstance(ctx context.Context, id, key, value string) error
	StopInstance(ctx context.Context, id string) error
}

// MetricSink receives player-count samples. Failures are never fatal.
type MetricSink interface {
	PublishPlayerCount(ctx context.Context, instanceID string, players int) error
}

// Checkpoint persists the last-active instant across monitor restarts.
type Checkpoint interface {
	LastActive() (time.Time, bool, error)
	SetLastActive(t time.Time) error
}

// TickObserver receives per-tick observations for local metrics.
type TickObserver interface {
	ObserveTick(ctx context.Context, players int, idle time.Duration)
	ObserveSampleError(ctx context.Context)
	ObservePublishError(ctx context.Context)
}

// Config holds monitor settings.
type Config struct {
	InstanceID          string
	PollInterval        time.Duration
	InactivityThreshold time.Duration
	CallTimeout         time.Duration
}

// Deps are the monitor's collaborators. Checkpoint and Observer are
// optional.
type Deps struct {
	Source     ActivitySource
	Control    InstanceControl
	Sink       MetricSink
	Checkpoint Checkpoint
	Observer   TickObserver
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Monitor is a single-threaded loop: sample, report, evaluate, maybe
// stop. It transitions Monitoring -> Suspended exactly once.
type Monitor struct {
	cfg     Config
	source  ActivitySource
	control InstanceControl
	sink    MetricSink
	ckpt    Checkpoint
	obs     TickObserver
	logger  zerolog.Logger
	now     func() time.Time

	tracker *Tracker
	state   State
}

// New creates a monitor. The inactivity clock starts at the checkpointed
// last-active instant when one exists, otherwise at the current time.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if cfg.InstanceID == "" {
		return nil, errors.New("monitor: instance id required")
	}
	if cfg.InactivityThreshold <= 0 {
		return nil, errors.New("monitor: inactivity threshold must be positive")
	}
	if deps.Source == nil || deps.Control == nil || deps.Sink == nil {
		return nil, errors.New("monitor: source, control and sink are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	start := deps.Clock().UTC()
	if deps.Checkpoint != nil {
		saved, ok, err := deps.Checkpoint.LastActive()
		if err != nil {
			return nil, fmt.Errorf("monitor: load last-active checkpoint: %w", err)
		}
		if ok && saved.Before(start) {
			deps.Logger.Info().
				Time("last_active", saved).
				Msg("resuming inactivity clock from checkpoint")
			start = saved
		}
	}

	return &Monitor{
		cfg:     cfg,
		source:  deps.Source,
		control: deps.Control,
		sink:    deps.Sink,
		ckpt:    deps.Checkpoint,
		obs:     deps.Observer,
		logger:  deps.Logger,
		now:     deps.Clock,
		tracker: NewTracker(start),
		state:   StateMonitoring,
	}, nil
}

// State returns the monitor's current lifecycle state.
func (m *Monitor) State() State {
	return m.state
}

// Run ticks until the instance is stopped or the context is cancelled.
// A nil return means normal completion; an error means the stop action
// failed after the StopTime tag was already written.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Str("instance_id", m.cfg.InstanceID).
		Dur("poll_interval", m.cfg.PollInterval).
		Dur("inactivity_threshold", m.cfg.InactivityThreshold).
		Msg("monitor starting")

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := m.Tick(ctx)
		if err != nil {
			return err
		}
		if done {
			m.logger.Info().Msg("instance suspended, monitor exiting")
			return nil
		}

		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor cancelled")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one sample-report-evaluate cycle. It returns done=true once
// the instance has been stopped. Sampler and sink failures are logged
// and leave the inactivity clock untouched; only a stop failure after
// the tag was written surfaces as an error.
func (m *Monitor) Tick(ctx context.Context) (done bool, err error) {
	if m.state == StateSuspended {
		return true, nil
	}

	now := m.now().UTC()

	players, err := m.sample(ctx)
	if err != nil {
		// Transient: neither activity nor inactivity.
		m.logger.Error().Err(err).Msg("activity sample failed")
		if m.obs != nil {
			m.obs.ObserveSampleError(ctx)
		}
		return false, nil
	}

	m.publish(ctx, players)
	m.tracker.Observe(players, now)

	if players > 0 {
		m.checkpoint(now)
		m.logger.Info().Int("players", players).Msg("players online")
		if m.obs != nil {
			m.obs.ObserveTick(ctx, players, 0)
		}
		return false, nil
	}

	idle := m.tracker.IdleFor(now)
	m.logger.Info().
		Dur("idle", idle).
		Dur("threshold", m.cfg.InactivityThreshold).
		Msg("no players online")
	if m.obs != nil {
		m.obs.ObserveTick(ctx, 0, idle)
	}

	if idle < m.cfg.InactivityThreshold {
		return false, nil
	}

	return m.suspend(ctx, now)
}

func (m *Monitor) sample(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	return m.source.PlayerCount(sctx)
}

func (m *Monitor) publish(ctx context.Context, players int) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	if err := m.sink.PublishPlayerCount(pctx, m.cfg.InstanceID, players); err != nil {
		m.logger.Error().Err(err).Msg("publish player count failed")
		if m.obs != nil {
			m.obs.ObservePublishError(ctx)
		}
	}
}

func (m *Monitor) checkpoint(now time.Time) {
	if m.ckpt == nil {
		return
	}
	if err := m.ckpt.SetLastActive(now); err != nil {
		m.logger.Error().Err(err).Msg("checkpoint last-active failed")
	}
}

// suspend tags the instance with the stop time, then issues the stop.
// A tag failure is retryable on the next tick; a stop failure after the
// tag was written is fatal for this run. The tag still makes the
// instance terminable once it eventually stops.
func (m *Monitor) suspend(ctx context.Context, now time.Time) (bool, error) {
	stopTime := now.Format(time.RFC3339)

	tctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	if err := m.control.TagInstance(tctx, m.cfg.InstanceID, StopTimeTag, stopTime); err != nil {
		m.logger.Error().Err(err).Msg("tag StopTime failed, will retry next tick")
		return false, nil
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	if err := m.control.StopInstance(sctx, m.cfg.InstanceID); err != nil {
		return false, fmt.Errorf("stop instance %s after StopTime tag written: %w", m.cfg.InstanceID, err)
	}

	m.state = StateSuspended
	m.logger.Info().
		Str("instance_id", m.cfg.InstanceID).
		Str("stop_time", stopTime).
		Msg("instance stopping due to inactivity")
	return true, nil
}
