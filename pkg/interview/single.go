package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/live"
	"github.com/voxprep/voxprep/pkg/transcript"
)

// SpeakerYou labels the candidate's side of the transcript.
const SpeakerYou = "You"

// SingleConfig configures a single-interviewer session.
type SingleConfig struct {
	// Dial opens live sessions. Required.
	Dial live.DialFunc

	// Setup is the session configuration.
	Setup Setup

	// Model overrides the live default when set.
	Model string

	// Voice overrides the default single-session voice when set.
	Voice string

	// Sink is the playback output device. May be nil.
	Sink audio.Sink

	// BlockSize overrides the capture block size. Default: audio.SmallBlockSize.
	BlockSize int

	// Events receives UI callbacks.
	Events Events

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Single runs a one-interviewer live session: one connection, one voice, the
// flat question list. Safe for concurrent use.
type Single struct {
	cfg    SingleConfig
	logger *slog.Logger

	log     *transcript.Log
	player  *audio.Player
	capture *audio.Capture

	muted atomic.Bool
	errCh chan error

	mu      sync.Mutex
	session live.Session
	closed  bool
}

// NewSingle creates a single-session controller. Nothing connects until Start.
func NewSingle(cfg SingleConfig) (*Single, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("interview: dial func is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.SmallBlockSize
	}
	if cfg.Voice == "" {
		cfg.Voice = voiceHR
	}

	s := &Single{
		cfg:    cfg,
		logger: cfg.Logger,
		log:    transcript.NewLog(),
		errCh:  make(chan error, 4),
	}
	s.player = audio.NewPlayer(audio.PlayerConfig{
		Sink:       cfg.Sink,
		OnSpeaking: cfg.Events.emitSpeaking,
	})
	s.capture = audio.NewCapture(audio.CaptureConfig{BlockSize: cfg.BlockSize})
	return s, nil
}

// Start dials the session and wires the audio graph. On a restart the system
// instruction replays the finalized transcript so the interviewer resumes
// instead of starting over. The stream is not consumed until the connection is
// open.
func (s *Single) Start(ctx context.Context, stream audio.Stream) error {
	if stream == nil {
		return fmt.Errorf("interview: media stream is required")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("interview: controller is closed")
	}
	prior := s.session
	s.session = nil
	s.mu.Unlock()

	s.capture.Stop()
	if prior != nil {
		_ = prior.Close()
	}

	s.cfg.Events.emitStatus(StatusConnecting, 0)

	history := s.log.Finalized()
	resuming := len(history) > 0
	session, err := s.cfg.Dial(ctx, live.Config{
		Model:             s.cfg.Model,
		SystemInstruction: singleSystemInstruction(s.cfg.Setup, history),
		Voice:             s.cfg.Voice,
		Handlers: live.Handlers{
			OnFragment:     s.onFragment,
			OnAudio:        s.onAudio,
			OnTurnComplete: s.onTurnComplete,
			OnInterrupted:  s.onInterrupted,
			OnError:        s.onError,
		},
	})
	if err != nil {
		return fmt.Errorf("interview: open session: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = session.Close()
		return fmt.Errorf("interview: controller is closed")
	}
	s.session = session
	// Capture is wired under the lock so a concurrent Close cannot land
	// between the closed check and the start.
	s.capture.Start(stream, func(blob audio.Blob) {
		if s.muted.Load() {
			return
		}
		session.SendAudio(blob)
	})
	s.mu.Unlock()

	if !resuming {
		session.SendDirective(greetingDirective(s.cfg.Setup))
	}
	s.cfg.Events.emitStatus(StatusConnected, 0)
	s.logger.Info("single session started", "resuming", resuming, "history_turns", len(history))
	return nil
}

func (s *Single) onFragment(source live.Source, text string, final bool) {
	speaker := s.interviewerName()
	if source == live.SourceUser {
		speaker = SpeakerYou
	}
	s.log.ApplyFragment(speaker, text, final)
	s.cfg.Events.emitTranscript(speaker, text, final)
}

func (s *Single) onAudio(b64 string) {
	pcm, err := audio.DecodeBase64(b64)
	if err != nil {
		s.logger.Debug("dropping malformed audio chunk", "error", err)
		return
	}
	buf, err := audio.PCMToBuffer(pcm, audio.PlaybackRate, 1)
	if err != nil {
		s.logger.Debug("dropping truncated audio chunk", "error", err)
		return
	}
	s.player.Enqueue(buf)
}

// onTurnComplete closes out both sides' in-flight turns: the service stops
// emitting fragments for them once the turn boundary passes.
func (s *Single) onTurnComplete() {
	s.log.FinalizeSpeaker(SpeakerYou)
	s.log.FinalizeSpeaker(s.interviewerName())
}

func (s *Single) onInterrupted() {
	s.player.BargeIn()
}

func (s *Single) onError(err error) {
	select {
	case s.errCh <- err:
	default:
		s.logger.Warn("dropping session error, channel full", "error", err)
	}
}

// AskForCandidateQuestions flips the interviewer into answering the
// candidate's own questions.
func (s *Single) AskForCandidateQuestions() {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session != nil {
		session.SendDirective(inviteQuestionsDirective())
	}
}

// SetMuted suppresses microphone audio without pausing capture, so unmuting
// resumes instantly.
func (s *Single) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports the current mute state.
func (s *Single) Muted() bool {
	return s.muted.Load()
}

// Transcript returns a snapshot of the conversation so far.
func (s *Single) Transcript() []transcript.Turn {
	return s.log.Snapshot()
}

// Errors surfaces fatal session errors for the supervisor.
func (s *Single) Errors() <-chan error {
	return s.errCh
}

// Close tears down capture, playback and the connection. Idempotent.
func (s *Single) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	session := s.session
	s.session = nil
	s.mu.Unlock()

	s.capture.Stop()
	s.player.Close()
	if session != nil {
		return session.Close()
	}
	return nil
}

func (s *Single) interviewerName() string {
	return interviewerName(s.cfg.Setup)
}
