package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxprep/voxprep/pkg/live"
)

type eventRecorder struct {
	mu       sync.Mutex
	personas []string
	statuses []string
}

func (r *eventRecorder) events() Events {
	return Events{
		ActivePersona: func(name string) {
			r.mu.Lock()
			r.personas = append(r.personas, name)
			r.mu.Unlock()
		},
		Status: func(status Status, attempt int) {
			r.mu.Lock()
			r.statuses = append(r.statuses, fmt.Sprintf("%s/%d", status, attempt))
			r.mu.Unlock()
		},
	}
}

func (r *eventRecorder) lastPersona() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.personas) == 0 {
		return ""
	}
	return r.personas[len(r.personas)-1]
}

func newTestPanel(t *testing.T, dialer *fakeDialer, events Events) *Panel {
	t.Helper()
	panel, err := NewPanel(PanelConfig{
		Dial:      dialer.dial,
		Setup:     testSetup(),
		Roster:    testRoster(),
		BlockSize: 4,
		Events:    events,
	})
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}
	return panel
}

func startTestPanel(t *testing.T, panel *Panel) *chanStream {
	t.Helper()
	stream := newChanStream()
	if err := panel.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = panel.Close() })
	return stream
}

// seedTurn records one finalized turn through a persona's live handlers, the
// same path real transcription fragments take.
func seedTurn(cfg live.Config, source live.Source, text string) {
	cfg.Handlers.OnFragment(source, text, false)
	cfg.Handlers.OnTurnComplete()
}

func configByVoice(t *testing.T, dialer *fakeDialer, voice string) live.Config {
	t.Helper()
	for _, cfg := range dialer.dialedConfigs() {
		if cfg.Voice == voice {
			return cfg
		}
	}
	t.Fatalf("no dial config with voice %q", voice)
	return live.Config{}
}

func TestNewPanel_MissingRoleFailsBeforeDialing(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	_, err := NewPanel(PanelConfig{
		Dial:  dialer.dial,
		Setup: testSetup(),
		Roster: []Interviewer{
			{Name: "Alex Chen", Role: RoleSoftwareEngineer},
			{Name: "Jordan Lee", Role: RoleHiringManager},
		},
	})
	if !errors.Is(err, ErrMissingRole) {
		t.Fatalf("err=%v, want ErrMissingRole", err)
	}
	if dialer.dialCount() != 0 {
		t.Fatalf("dialed %d times before validation failure", dialer.dialCount())
	}
}

func TestPanel_StartOpensThreeAndHRGreets(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	recorder := &eventRecorder{}
	panel := newTestPanel(t, dialer, recorder.events())
	startTestPanel(t, panel)

	if dialer.dialCount() != 3 {
		t.Fatalf("dialed %d sessions, want 3", dialer.dialCount())
	}
	voices := map[string]bool{}
	for _, cfg := range dialer.dialedConfigs() {
		voices[cfg.Voice] = true
	}
	if !voices["Charon"] || !voices["Puck"] || !voices["Kore"] {
		t.Fatalf("voices=%v", voices)
	}

	if panel.Active() != PersonaHR {
		t.Fatalf("active=%q, want hr", panel.Active())
	}
	if recorder.lastPersona() != "Sam Taylor" {
		t.Fatalf("active persona event=%q", recorder.lastPersona())
	}

	hr := dialer.sessionByVoice(t, "Kore")
	directives := hr.sentDirectives()
	if len(directives) != 1 {
		t.Fatalf("hr directives=%v", directives)
	}
	if !strings.Contains(directives[0], "Riley") || !strings.Contains(directives[0], "Alex Chen") {
		t.Fatalf("greeting=%q", directives[0])
	}
	for _, voice := range []string{"Charon", "Puck"} {
		if got := dialer.sessionByVoice(t, voice).sentDirectives(); len(got) != 0 {
			t.Fatalf("persona %s got directives %v at start", voice, got)
		}
	}
}

func TestPanel_StartFailureClosesAndReports(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{failWith: errors.New("dial refused")}
	panel := newTestPanel(t, dialer, Events{})
	if err := panel.Start(context.Background(), newChanStream()); err == nil {
		t.Fatalf("expected start error")
	}
}

func TestPanel_SwitchToDeliversContextAndQuestion(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	recorder := &eventRecorder{}
	panel := newTestPanel(t, dialer, recorder.events())
	startTestPanel(t, panel)

	hrCfg := configByVoice(t, dialer, "Kore")
	seedTurn(hrCfg, live.SourceUser, "tell me about the benefits")
	seedTurn(hrCfg, live.SourceAgent, "we offer great benefits")
	seedTurn(hrCfg, live.SourceUser, "what about growth")
	seedTurn(hrCfg, live.SourceAgent, "plenty of growth paths")
	seedTurn(hrCfg, live.SourceUser, "great, thanks")

	panel.SwitchTo(PersonaTechnical)

	if panel.Active() != PersonaTechnical {
		t.Fatalf("active=%q, want technical", panel.Active())
	}
	if recorder.lastPersona() != "Alex Chen" {
		t.Fatalf("active persona event=%q", recorder.lastPersona())
	}

	tech := dialer.sessionByVoice(t, "Charon")
	directives := tech.sentDirectives()
	if len(directives) != 1 {
		t.Fatalf("tech directives=%v", directives)
	}
	directive := directives[0]

	for _, line := range []string{
		"Sam Taylor: we offer great benefits",
		"You: what about growth",
		"Sam Taylor: plenty of growth paths",
		"You: great, thanks",
	} {
		if !strings.Contains(directive, line) {
			t.Fatalf("directive missing %q:\n%s", line, directive)
		}
	}
	if strings.Contains(directive, "tell me about the benefits") {
		t.Fatalf("directive leaked turn outside the context window:\n%s", directive)
	}
	if !strings.Contains(directive, `"Design a rate limiter."`) {
		t.Fatalf("directive missing next question:\n%s", directive)
	}

	// Switching to the already active persona advances its question pointer.
	panel.SwitchTo(PersonaTechnical)
	directives = tech.sentDirectives()
	if len(directives) != 2 {
		t.Fatalf("tech directives after re-switch=%v", directives)
	}
	if !strings.Contains(directives[1], `"Explain goroutine scheduling."`) {
		t.Fatalf("second directive question wrong:\n%s", directives[1])
	}
}

func TestPanel_SwitchToClosedTargetIsNoop(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	panel := newTestPanel(t, dialer, Events{})
	startTestPanel(t, panel)

	_ = dialer.sessionByVoice(t, "Charon").Close()
	panel.SwitchTo(PersonaTechnical)

	if panel.Active() != PersonaHR {
		t.Fatalf("active=%q, want hr after no-op switch", panel.Active())
	}
}

func TestPanel_MuteSuppressesMicToEveryPersona(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	panel := newTestPanel(t, dialer, Events{})
	stream := startTestPanel(t, panel)

	hr := dialer.sessionByVoice(t, "Kore")
	stream.push(8) // two blocks at BlockSize 4
	waitFor(t, func() bool { return hr.audioCount() == 2 })

	panel.SetMuted(true)
	stream.push(8)
	time.Sleep(50 * time.Millisecond)
	if hr.audioCount() != 2 {
		t.Fatalf("muted hr audio=%d, want 2", hr.audioCount())
	}
	for _, voice := range []string{"Charon", "Puck"} {
		if n := dialer.sessionByVoice(t, voice).audioCount(); n != 0 {
			t.Fatalf("persona %s received %d audio blocks", voice, n)
		}
	}

	panel.SetMuted(false)
	stream.push(4)
	waitFor(t, func() bool { return hr.audioCount() == 3 })
}

func TestPanel_UserFragmentsFromInactivePersonaIgnored(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	panel := newTestPanel(t, dialer, Events{})
	startTestPanel(t, panel)

	techCfg := configByVoice(t, dialer, "Charon")
	techCfg.Handlers.OnFragment(live.SourceUser, "echo heard by idle persona", false)

	for _, turn := range panel.Transcript() {
		if turn.Text == "echo heard by idle persona" {
			t.Fatalf("inactive persona's user fragment was recorded: %+v", turn)
		}
	}
}

func TestPanel_AskForCandidateQuestionsRoutesToBehavioral(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	recorder := &eventRecorder{}
	panel := newTestPanel(t, dialer, recorder.events())
	startTestPanel(t, panel)

	panel.AskForCandidateQuestions()

	if panel.Active() != PersonaBehavioral {
		t.Fatalf("active=%q, want behavioral", panel.Active())
	}
	behavioral := dialer.sessionByVoice(t, "Puck")
	directives := behavioral.sentDirectives()
	if len(directives) != 1 || !strings.Contains(directives[0], "Invite the candidate") {
		t.Fatalf("behavioral directives=%v", directives)
	}
}

func TestPanel_CloseDuringStartLeavesNoCapture(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	gate := make(chan struct{})
	gatedDial := func(ctx context.Context, cfg live.Config) (live.Session, error) {
		<-gate
		return dialer.dial(ctx, cfg)
	}
	panel, err := NewPanel(PanelConfig{
		Dial:      gatedDial,
		Setup:     testSetup(),
		Roster:    testRoster(),
		BlockSize: 4,
	})
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}

	stream := newChanStream()
	startErr := make(chan error, 1)
	go func() { startErr <- panel.Start(context.Background(), stream) }()

	// Close lands while all three dials are still in flight.
	if err := panel.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	close(gate)

	if err := <-startErr; err == nil {
		t.Fatalf("Start racing Close should fail")
	}
	for _, session := range dialer.sessions {
		if session.State() != live.StateClosed {
			t.Fatalf("session handed out mid-close was not closed")
		}
	}

	// Capture must not have been wired; frames go nowhere.
	stream.push(8)
	time.Sleep(50 * time.Millisecond)
	for _, session := range dialer.sessions {
		if n := session.audioCount(); n != 0 {
			t.Fatalf("capture still running after Close: %d blocks forwarded", n)
		}
	}
}

func TestPanel_RestartReplaysHistory(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	panel := newTestPanel(t, dialer, Events{})
	stream := startTestPanel(t, panel)

	hrCfg := configByVoice(t, dialer, "Kore")
	seedTurn(hrCfg, live.SourceAgent, "Do you have any questions for me?")
	seedTurn(hrCfg, live.SourceUser, "Sure, go ahead")

	if err := panel.Start(context.Background(), stream); err != nil {
		t.Fatalf("restart error: %v", err)
	}

	configs := dialer.dialedConfigs()
	if len(configs) != 6 {
		t.Fatalf("dialed %d sessions, want 6 across both starts", len(configs))
	}
	for _, cfg := range configs[3:] {
		if !strings.Contains(cfg.SystemInstruction, "Do you have any questions for me?") ||
			!strings.Contains(cfg.SystemInstruction, "Sure, go ahead") {
			t.Fatalf("restart instruction missing history:\n%s", cfg.SystemInstruction)
		}
		if !strings.Contains(cfg.SystemInstruction, `Resume the interview naturally from the last turn: "Sure, go ahead"`) {
			t.Fatalf("restart instruction missing resume anchor:\n%s", cfg.SystemInstruction)
		}
	}

	hr := dialer.sessionByVoice(t, "Kore")
	directives := hr.sentDirectives()
	if len(directives) != 1 {
		t.Fatalf("resumed hr directives=%v", directives)
	}
	if strings.Contains(directives[0], "Greet") {
		t.Fatalf("resumed session greeted again:\n%s", directives[0])
	}
	if !strings.Contains(directives[0], "You are now the active interviewer") {
		t.Fatalf("resumed session missing context directive:\n%s", directives[0])
	}
}
