package audio

import (
	"sync"
	"time"
)

// Sink is the output device for scheduled playback. Write receives decoded
// buffers in their scheduled start order; Flush discards anything the device
// still holds after a barge-in.
type Sink interface {
	Write(buf *Buffer)
	Flush()
}

// PlayerConfig configures the playback pipeline.
type PlayerConfig struct {
	// Sink is the output device. May be nil (scheduling still runs, useful in
	// tests and transcript-only mode).
	Sink Sink

	// OnSpeaking is invoked with true when the active set becomes non-empty
	// and false the instant it empties (natural end or barge-in). Emissions
	// are serialized and strictly alternate.
	OnSpeaking func(bool)

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// Scheduled reports where a buffer landed on the output timeline.
type Scheduled struct {
	Start time.Time
	End   time.Time
}

// Player sequences decoded buffers from any number of producers onto one
// shared output timeline. Buffers queue back to back: each starts at
// max(previousScheduledEnd, now), so clips from different personas never
// overlap regardless of arrival interleaving.
type Player struct {
	sink       Sink
	onSpeaking func(bool)
	now        func() time.Time

	mu     sync.Mutex
	cursor time.Time
	active map[int64]*scheduledClip
	nextID int64
	closed bool

	// speakMu orders OnSpeaking emissions; lastSpeaking is guarded by it.
	speakMu      sync.Mutex
	lastSpeaking bool
}

type scheduledClip struct {
	start *time.Timer
	end   *time.Timer
}

// NewPlayer creates a playback pipeline.
func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Player{
		sink:       cfg.Sink,
		onSpeaking: cfg.OnSpeaking,
		now:        cfg.Now,
		active:     make(map[int64]*scheduledClip),
	}
}

// Enqueue schedules buf at the running cursor and advances the cursor by the
// buffer's duration.
func (p *Player) Enqueue(buf *Buffer) Scheduled {
	if p == nil || buf == nil || buf.FrameCount() == 0 {
		return Scheduled{}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Scheduled{}
	}
	now := p.now()
	start := p.cursor
	if start.Before(now) {
		start = now
	}
	end := start.Add(buf.Duration())
	p.cursor = end

	p.nextID++
	id := p.nextID
	clip := &scheduledClip{}
	p.active[id] = clip

	clip.start = time.AfterFunc(start.Sub(now), func() {
		p.mu.Lock()
		_, live := p.active[id]
		sink := p.sink
		p.mu.Unlock()
		if live && sink != nil {
			sink.Write(buf)
		}
	})
	clip.end = time.AfterFunc(end.Sub(now), func() {
		p.finish(id)
	})
	p.mu.Unlock()

	p.syncSpeaking()
	return Scheduled{Start: start, End: end}
}

func (p *Player) finish(id int64) {
	p.mu.Lock()
	if _, ok := p.active[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, id)
	p.mu.Unlock()

	p.syncSpeaking()
}

// BargeIn stops every scheduled and playing clip, clears the active set, and
// resets the cursor to now. The next Enqueue starts fresh from the current
// output time rather than a stale future cursor.
func (p *Player) BargeIn() {
	if p == nil {
		return
	}
	p.mu.Lock()
	for id, clip := range p.active {
		clip.start.Stop()
		clip.end.Stop()
		delete(p.active, id)
	}
	p.cursor = p.now()
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink.Flush()
	}
	p.syncSpeaking()
}

// Speaking reports whether any clip is scheduled or playing.
func (p *Player) Speaking() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) > 0
}

// Close cancels all scheduled playback. Further Enqueue calls are ignored.
func (p *Player) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, clip := range p.active {
		clip.start.Stop()
		clip.end.Stop()
		delete(p.active, id)
	}
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink.Flush()
	}
	p.syncSpeaking()
}

// syncSpeaking reconciles the last emitted speaking state against the current
// active set and emits the transition if it changed. Holding speakMu across
// the state read and the callback keeps emissions in order; a finish racing an
// Enqueue at the empty boundary cannot deliver a stale value.
func (p *Player) syncSpeaking() {
	if p.onSpeaking == nil {
		return
	}
	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.mu.Lock()
	speaking := len(p.active) > 0
	p.mu.Unlock()

	if speaking == p.lastSpeaking {
		return
	}
	p.lastSpeaking = speaking
	p.onSpeaking(speaking)
}
