// Package transcript accumulates speech turns for an interview session.
//
// Fragments arrive interleaved from multiple live connections; each carries
// its speaker identity, so the log is safe under arbitrary interleaving.
package transcript

import "sync"

// Status is the lifecycle state of a turn.
type Status string

const (
	// StatusInterim marks a turn still being transcribed.
	StatusInterim Status = "interim"

	// StatusFinalized marks a completed turn. Finalized turns are immutable
	// and never reopened; the speaker's next utterance starts a new turn.
	StatusFinalized Status = "finalized"
)

// Turn is one contiguous utterance by a single speaker.
type Turn struct {
	ID      int
	Speaker string
	Text    string
	Status  Status
}

// Log is an ordered, growing list of turns.
//
// Invariant: at most one interim turn exists per speaker at any time.
type Log struct {
	mu     sync.Mutex
	nextID int
	turns  []Turn
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// ApplyFragment merges a transcription fragment. Fragments carry cumulative
// text, not deltas: the speaker's interim turn text is replaced, not appended.
// A final fragment with no interim turn to finalize is a no-op.
func (l *Log) ApplyFragment(speaker, text string, final bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.turns) - 1; i >= 0; i-- {
		turn := &l.turns[i]
		if turn.Speaker != speaker || turn.Status != StatusInterim {
			continue
		}
		turn.Text = text
		if final {
			turn.Status = StatusFinalized
		}
		return
	}
	if final {
		// Nothing in flight to finalize.
		return
	}
	l.nextID++
	l.turns = append(l.turns, Turn{
		ID:      l.nextID,
		Speaker: speaker,
		Text:    text,
		Status:  StatusInterim,
	})
}

// FinalizeSpeaker flushes the speaker's trailing interim turn, if any, into
// finalized. Used when the remote signals turn completion without a final
// fragment.
func (l *Log) FinalizeSpeaker(speaker string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.turns) - 1; i >= 0; i-- {
		turn := &l.turns[i]
		if turn.Speaker == speaker && turn.Status == StatusInterim {
			turn.Status = StatusFinalized
			return
		}
	}
}

// Snapshot returns a copy of all turns in insertion order.
func (l *Log) Snapshot() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Turn(nil), l.turns...)
}

// Finalized returns only finalized turns, in insertion order. Interim text may
// be incomplete, so reconnection replay context is built from this view.
func (l *Log) Finalized() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Turn, 0, len(l.turns))
	for _, turn := range l.turns {
		if turn.Status == StatusFinalized {
			out = append(out, turn)
		}
	}
	return out
}

// Tail returns a copy of the last n turns (fewer if the log is shorter).
func (l *Log) Tail(n int) []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || len(l.turns) == 0 {
		return nil
	}
	if n > len(l.turns) {
		n = len(l.turns)
	}
	return append([]Turn(nil), l.turns[len(l.turns)-n:]...)
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}
