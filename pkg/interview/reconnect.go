package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Controller is the surface the supervisor drives. Both Single and Panel
// implement it. Start must be safe to call again after a failure; it tears
// down whatever the previous attempt left behind.
type Controller interface {
	Start(ctx context.Context, stream audio.Stream) error
	Errors() <-chan error
	Close() error
}

// SupervisorState is the recovery lifecycle of a supervised session.
type SupervisorState string

const (
	SupervisorConnected    SupervisorState = "CONNECTED"
	SupervisorReconnecting SupervisorState = "RECONNECTING"
	SupervisorTerminal     SupervisorState = "TERMINAL"
)

// SupervisorConfig configures session recovery.
type SupervisorConfig struct {
	// Controller is the session to supervise. Required.
	Controller Controller

	// MaxRetries bounds consecutive failed recovery attempts. Default: 3.
	MaxRetries int

	// Backoff is the base delay before the first retry; each subsequent retry
	// doubles it. Default: 1s.
	Backoff time.Duration

	// Events receives status callbacks.
	Events Events

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Supervisor restarts a controller after fatal session errors with bounded
// exponential backoff. A successful restart resets the attempt counter; after
// MaxRetries consecutive failures the session is terminal.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   SupervisorState
	attempt int
}

// NewSupervisor creates a supervisor. Nothing runs until Run.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("interview: controller is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, logger: cfg.Logger, state: SupervisorReconnecting}, nil
}

// State returns the current recovery state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the current consecutive failed attempt count.
func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *Supervisor) setState(state SupervisorState, attempt int) {
	s.mu.Lock()
	s.state = state
	s.attempt = attempt
	s.mu.Unlock()
}

// Run starts the controller and supervises it until the context is cancelled
// or recovery is exhausted. It blocks; the controller is closed before Run
// returns. The returned error is nil on clean cancellation.
func (s *Supervisor) Run(ctx context.Context, stream audio.Stream) error {
	defer s.cfg.Controller.Close()

	if err := s.cfg.Controller.Start(ctx, stream); err != nil {
		s.logger.Warn("initial start failed", "error", err)
		if recErr := s.recover(ctx, stream); recErr != nil {
			return recErr
		}
	} else {
		s.setState(SupervisorConnected, 0)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.cfg.Controller.Errors():
			s.logger.Warn("session error", "error", err)
			if recErr := s.recover(ctx, stream); recErr != nil {
				return recErr
			}
		}
	}
}

// recover retries Start with doubling backoff until it succeeds or the retry
// budget is spent.
func (s *Supervisor) recover(ctx context.Context, stream audio.Stream) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		s.setState(SupervisorReconnecting, attempt)
		s.cfg.Events.emitStatus(StatusConnecting, attempt)

		delay := s.cfg.Backoff << (attempt - 1)
		s.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if err := s.cfg.Controller.Start(ctx, stream); err != nil {
			lastErr = err
			s.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		s.setState(SupervisorConnected, 0)
		return nil
	}

	s.setState(SupervisorTerminal, s.cfg.MaxRetries)
	s.cfg.Events.emitStatus(StatusError, s.cfg.MaxRetries)
	if lastErr != nil {
		return fmt.Errorf("interview: recovery exhausted after %d attempts: %w", s.cfg.MaxRetries, lastErr)
	}
	return fmt.Errorf("interview: recovery exhausted after %d attempts", s.cfg.MaxRetries)
}
