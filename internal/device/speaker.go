package device

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Speaker plays decoded agent speech through the default output device. It
// implements audio.Sink: Write appends a buffer to the outgoing byte queue and
// Flush discards everything queued, including oto's internal buffer, so a
// barge-in silences output immediately.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// OpenSpeaker initializes the output device at the session playback rate.
// The small device buffer keeps barge-in latency down.
func OpenSpeaker() (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.PlaybackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800, // ~100ms at 24kHz mono 16-bit
	})
	if err != nil {
		return nil, fmt.Errorf("device: init speaker: %w", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx, buf: make([]byte, 0, audio.PlaybackRate*4)}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write implements audio.Sink. The first write starts the oto player, which
// then pulls bytes through Read.
func (s *Speaker) Write(buf *audio.Buffer) {
	if buf == nil || buf.FrameCount() == 0 {
		return
	}
	data := int16Bytes(buf.Planes[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

// Read implements io.Reader for the oto player.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains without error.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush implements audio.Sink: drop queued audio and reset the device player
// so nothing already handed to the hardware keeps playing.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	if s.player == nil || !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	player := s.player
	s.player = nil
	s.mu.Unlock()

	player.Pause()
	player.Reset()
	player.Close()
}

// Close stops playback and releases the player.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}

// int16Bytes converts float32 samples to little-endian signed 16-bit PCM,
// matching the wire quantization.
func int16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := int16(int32(sample * 32768))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
