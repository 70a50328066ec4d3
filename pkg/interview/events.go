package interview

// Status is the session lifecycle status surfaced to the caller's UI.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusConnecting Status = "CONNECTING"
	StatusConnected  Status = "CONNECTED"
	StatusError      Status = "ERROR"
)

// Events carries the caller's UI callbacks. Any field may be nil. Callbacks
// run on controller goroutines and must not block.
type Events struct {
	// Transcript delivers a transcript update. Text is the full cumulative
	// text of the turn so far.
	Transcript func(speaker, text string, final bool)

	// Speaking reports agent playback starting and stopping.
	Speaking func(active bool)

	// ActivePersona reports a change of the persona currently addressed by
	// microphone audio, by display name.
	ActivePersona func(name string)

	// Status reports lifecycle transitions. Attempt is nonzero only while
	// reconnecting.
	Status func(status Status, attempt int)
}

func (e Events) emitTranscript(speaker, text string, final bool) {
	if e.Transcript != nil {
		e.Transcript(speaker, text, final)
	}
}

func (e Events) emitSpeaking(active bool) {
	if e.Speaking != nil {
		e.Speaking(active)
	}
}

func (e Events) emitActivePersona(name string) {
	if e.ActivePersona != nil {
		e.ActivePersona(name)
	}
}

func (e Events) emitStatus(status Status, attempt int) {
	if e.Status != nil {
		e.Status(status, attempt)
	}
}
