package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/live"
	"github.com/voxprep/voxprep/pkg/transcript"
)

// contextWindow is how many recent turns a persona sees on handoff.
const contextWindow = 4

// PanelConfig configures a three-interviewer panel session.
type PanelConfig struct {
	// Dial opens live sessions. Required.
	Dial live.DialFunc

	// Setup is the session configuration.
	Setup Setup

	// Roster must contain exactly one interviewer per required role.
	Roster []Interviewer

	// Model overrides the live default when set.
	Model string

	// Sink is the shared playback output device. May be nil.
	Sink audio.Sink

	// BlockSize overrides the capture block size. Default: audio.DefaultBlockSize.
	BlockSize int

	// Events receives UI callbacks.
	Events Events

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type personaLink struct {
	config PersonaConfig

	mu           sync.Mutex
	session      live.Session
	nextQuestion int
}

func (l *personaLink) currentSession() live.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// takeQuestion returns the next unasked question, advancing the pointer, or ""
// when the list is exhausted.
func (l *personaLink) takeQuestion() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nextQuestion >= len(l.config.Questions) {
		return ""
	}
	q := l.config.Questions[l.nextQuestion]
	l.nextQuestion++
	return q
}

// Panel runs a three-interviewer session over three concurrent connections,
// one per persona. All personas share one transcript, one microphone and one
// playback timeline; microphone audio goes only to the active persona.
type Panel struct {
	cfg    PanelConfig
	logger *slog.Logger

	links map[Persona]*personaLink

	log     *transcript.Log
	player  *audio.Player
	capture *audio.Capture

	muted atomic.Bool
	errCh chan error

	mu     sync.Mutex
	active Persona
	closed bool
}

// NewPanel creates a panel controller. The roster is validated here, before
// any connection is opened; a malformed roster never dials.
func NewPanel(cfg PanelConfig) (*Panel, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("interview: dial func is required")
	}
	configs, err := buildPersonaConfigs(cfg.Setup, cfg.Roster)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.DefaultBlockSize
	}

	p := &Panel{
		cfg:    cfg,
		logger: cfg.Logger,
		links:  make(map[Persona]*personaLink, len(configs)),
		log:    transcript.NewLog(),
		errCh:  make(chan error, 4),
	}
	for persona, pc := range configs {
		p.links[persona] = &personaLink{config: pc}
	}
	p.player = audio.NewPlayer(audio.PlayerConfig{
		Sink:       cfg.Sink,
		OnSpeaking: cfg.Events.emitSpeaking,
	})
	p.capture = audio.NewCapture(audio.CaptureConfig{BlockSize: cfg.BlockSize})
	return p, nil
}

// Start opens all three persona connections concurrently, then routes the
// microphone to the HR persona, who opens the interview. If any dial fails the
// ones that succeeded are closed and Start reports the failure. On a restart
// each persona's instruction replays the finalized transcript.
func (p *Panel) Start(ctx context.Context, stream audio.Stream) error {
	if stream == nil {
		return fmt.Errorf("interview: media stream is required")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("interview: controller is closed")
	}
	p.mu.Unlock()

	p.capture.Stop()
	p.closeSessions()

	p.cfg.Events.emitStatus(StatusConnecting, 0)

	history := p.log.Finalized()
	resuming := len(history) > 0

	var wg sync.WaitGroup
	dialErrs := make(map[Persona]error, len(p.links))
	var dialMu sync.Mutex
	for persona, link := range p.links {
		wg.Add(1)
		go func(persona Persona, link *personaLink) {
			defer wg.Done()
			session, err := p.cfg.Dial(ctx, live.Config{
				Model:             p.cfg.Model,
				SystemInstruction: personaInstruction(link.config, history),
				Voice:             link.config.Voice,
				Handlers:          p.handlersFor(link.config),
			})
			if err != nil {
				dialMu.Lock()
				dialErrs[persona] = err
				dialMu.Unlock()
				return
			}
			link.mu.Lock()
			link.session = session
			link.mu.Unlock()
		}(persona, link)
	}
	wg.Wait()

	if len(dialErrs) > 0 {
		p.closeSessions()
		errs := make([]error, 0, len(dialErrs))
		for persona, err := range dialErrs {
			errs = append(errs, fmt.Errorf("interview: open %s session: %w", persona, err))
		}
		return errors.Join(errs...)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.closeSessions()
		return fmt.Errorf("interview: controller is closed")
	}
	if p.active == "" {
		p.active = PersonaHR
	}
	active := p.active
	// Late-binding dispatcher: the active persona is resolved per block, so a
	// switch takes effect on the very next capture block. Wired under the lock
	// so a concurrent Close cannot land between the closed check and the start.
	p.capture.Start(stream, func(blob audio.Blob) {
		if p.muted.Load() {
			return
		}
		if session := p.activeSession(); session != nil {
			session.SendAudio(blob)
		}
	})
	p.mu.Unlock()

	activeLink := p.links[active]
	p.cfg.Events.emitActivePersona(activeLink.config.DisplayName)
	if session := activeLink.currentSession(); session != nil {
		if resuming {
			session.SendDirective(contextSwitchDirective(p.log.Tail(contextWindow), ""))
		} else {
			session.SendDirective(panelGreetingDirective(p.cfg.Setup, p.panelistNames()))
		}
	}
	p.cfg.Events.emitStatus(StatusConnected, 0)
	p.logger.Info("panel session started", "active", active, "resuming", resuming)
	return nil
}

func (p *Panel) handlersFor(pc PersonaConfig) live.Handlers {
	return live.Handlers{
		OnFragment: func(source live.Source, text string, final bool) {
			speaker := pc.DisplayName
			if source == live.SourceUser {
				speaker = SpeakerYou
				// Every connection hears the microphone transcription, but
				// only the addressed persona records it.
				if !p.isActive(pc.Persona) {
					return
				}
			}
			p.log.ApplyFragment(speaker, text, final)
			p.cfg.Events.emitTranscript(speaker, text, final)
		},
		OnAudio: func(b64 string) {
			pcm, err := audio.DecodeBase64(b64)
			if err != nil {
				p.logger.Debug("dropping malformed audio chunk", "persona", pc.Persona, "error", err)
				return
			}
			buf, err := audio.PCMToBuffer(pcm, audio.PlaybackRate, 1)
			if err != nil {
				p.logger.Debug("dropping truncated audio chunk", "persona", pc.Persona, "error", err)
				return
			}
			p.player.Enqueue(buf)
		},
		OnTurnComplete: func() {
			p.log.FinalizeSpeaker(SpeakerYou)
			p.log.FinalizeSpeaker(pc.DisplayName)
		},
		OnInterrupted: func() {
			p.player.BargeIn()
		},
		OnError: func(err error) {
			select {
			case p.errCh <- fmt.Errorf("%s: %w", pc.Persona, err):
			default:
				p.logger.Warn("dropping session error, channel full", "persona", pc.Persona, "error", err)
			}
		},
	}
}

// SwitchTo hands the conversation to another persona. The target receives the
// last few turns as context plus its next unasked question. Switching to the
// already-active persona is allowed and nudges it onward. A target whose
// connection is not open is a no-op.
func (p *Panel) SwitchTo(target Persona) {
	link, ok := p.links[target]
	if !ok {
		return
	}
	session := link.currentSession()
	if session == nil || session.State() != live.StateOpen {
		p.logger.Warn("switch target not open, ignoring", "persona", target)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.active = target
	p.mu.Unlock()

	p.cfg.Events.emitActivePersona(link.config.DisplayName)
	session.SendDirective(contextSwitchDirective(p.log.Tail(contextWindow), link.takeQuestion()))
}

// AskForCandidateQuestions routes to the behavioral persona, who invites and
// answers the candidate's own questions.
func (p *Panel) AskForCandidateQuestions() {
	link := p.links[PersonaBehavioral]
	session := link.currentSession()
	if session == nil || session.State() != live.StateOpen {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.active = PersonaBehavioral
	p.mu.Unlock()

	p.cfg.Events.emitActivePersona(link.config.DisplayName)
	session.SendDirective(inviteQuestionsDirective())
}

// SetMuted suppresses microphone audio to every persona without pausing
// capture.
func (p *Panel) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports the current mute state.
func (p *Panel) Muted() bool {
	return p.muted.Load()
}

// Active returns the persona currently receiving microphone audio.
func (p *Panel) Active() Persona {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Transcript returns a snapshot of the shared conversation log.
func (p *Panel) Transcript() []transcript.Turn {
	return p.log.Snapshot()
}

// Errors surfaces fatal session errors for the supervisor.
func (p *Panel) Errors() <-chan error {
	return p.errCh
}

// Close tears down capture, playback and all three connections, attempting
// every close even if one fails. Idempotent.
func (p *Panel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.capture.Stop()
	p.player.Close()
	return p.closeSessions()
}

func (p *Panel) closeSessions() error {
	var errs []error
	for persona, link := range p.links {
		link.mu.Lock()
		session := link.session
		link.session = nil
		link.mu.Unlock()
		if session == nil {
			continue
		}
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s session: %w", persona, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Panel) activeSession() live.Session {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	link, ok := p.links[active]
	if !ok {
		return nil
	}
	return link.currentSession()
}

func (p *Panel) isActive(persona Persona) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active == persona
}

func (p *Panel) panelistNames() []string {
	names := make([]string, 0, len(p.links))
	for _, persona := range []Persona{PersonaTechnical, PersonaBehavioral, PersonaHR} {
		if link, ok := p.links[persona]; ok {
			names = append(names, link.config.DisplayName)
		}
	}
	return names
}

// personaInstruction appends the reconnect replay to the persona's base
// instruction when finalized history exists.
func personaInstruction(pc PersonaConfig, history []transcript.Turn) string {
	if len(history) == 0 {
		return pc.SystemInstruction
	}
	last := history[len(history)-1]
	return pc.SystemInstruction +
		"\nThe session was interrupted and has just reconnected. The conversation so far:\n" +
		renderTurns(history) +
		fmt.Sprintf("\nDo not restart or greet again. Resume the interview naturally from the last turn: %q.\n", last.Text)
}
