package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/live"
)

// fakeSession is a live.Session double that records everything sent to it.
type fakeSession struct {
	cfg live.Config

	mu         sync.Mutex
	state      live.State
	audio      []audio.Blob
	directives []string
}

func (s *fakeSession) SendAudio(blob audio.Blob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != live.StateOpen {
		return
	}
	s.audio = append(s.audio, blob)
}

func (s *fakeSession) SendDirective(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != live.StateOpen {
		return
	}
	s.directives = append(s.directives, text)
}

func (s *fakeSession) State() live.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = live.StateClosed
	return nil
}

func (s *fakeSession) audioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

func (s *fakeSession) sentDirectives() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.directives...)
}

// fakeDialer hands out fakeSessions and records every dial config.
type fakeDialer struct {
	mu       sync.Mutex
	configs  []live.Config
	sessions []*fakeSession
	failWith error
}

func (d *fakeDialer) dial(_ context.Context, cfg live.Config) (live.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	if d.failWith != nil {
		return nil, d.failWith
	}
	session := &fakeSession{cfg: cfg, state: live.StateOpen}
	d.sessions = append(d.sessions, session)
	return session, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.configs)
}

func (d *fakeDialer) dialedConfigs() []live.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]live.Config(nil), d.configs...)
}

// sessionByVoice finds the most recent session dialed with the given voice.
// Persona voices are distinct, so this identifies the persona's connection.
func (d *fakeDialer) sessionByVoice(t *testing.T, voice string) *fakeSession {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sessions) - 1; i >= 0; i-- {
		if d.sessions[i].cfg.Voice == voice {
			return d.sessions[i]
		}
	}
	t.Fatalf("no session dialed with voice %q", voice)
	return nil
}

// chanStream is an audio.Stream fed by a test.
type chanStream struct {
	ch chan []float32
}

func newChanStream() *chanStream {
	return &chanStream{ch: make(chan []float32, 64)}
}

func (s *chanStream) Frames() <-chan []float32 { return s.ch }

func (s *chanStream) push(n int) {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = 0.25
	}
	s.ch <- frame
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}

func testRoster() []Interviewer {
	return []Interviewer{
		{Name: "Alex Chen", Role: RoleSoftwareEngineer},
		{Name: "Jordan Lee", Role: RoleHiringManager},
		{Name: "Sam Taylor", Role: RoleHRSpecialist},
	}
}

func testSetup() Setup {
	return Setup{
		CandidateName: "Riley",
		Company:       "Initech",
		Style:         "friendly",
		Questions: []string{
			"Tell me about yourself.",
			"Why this company?",
		},
		QuestionSet: QuestionSet{
			Technical:  []string{"Design a rate limiter.", "Explain goroutine scheduling."},
			Behavioral: []string{"Describe a conflict you resolved."},
			HR:         []string{"What are your salary expectations?"},
			HandsOn:    []string{"Walk through debugging a memory leak."},
		},
	}
}
