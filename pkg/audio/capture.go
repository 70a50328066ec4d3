package audio

import (
	"sync"
)

const (
	// DefaultBlockSize is the capture block size in samples for panel sessions.
	DefaultBlockSize = 4096

	// SmallBlockSize is the lower-latency block size used by single sessions.
	SmallBlockSize = 1024
)

// Stream is a live microphone source. Implementations deliver float32 sample
// frames at CaptureRate; frame sizing is up to the device and the capture
// pipeline re-blocks them. The stream is owned by the caller; the pipeline
// never closes it, so it can be reused across a reconnect.
type Stream interface {
	Frames() <-chan []float32
}

// CaptureConfig configures the capture pipeline.
type CaptureConfig struct {
	// BlockSize is the number of samples per emitted blob. Default: DefaultBlockSize.
	BlockSize int
}

// Capture re-blocks a microphone stream into fixed-size blocks, converts each
// block to the wire format and hands it to a sink.
//
// The sink runs synchronously on the capture goroutine: it must do cheap work
// only (dispatch and return), or audio blocks will back up.
type Capture struct {
	blockSize int

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewCapture creates a capture pipeline.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	return &Capture{blockSize: cfg.BlockSize}
}

// Start begins pulling frames from the stream. Each accumulated block is
// converted via FloatToBlob and passed to sink. Capture never pauses on its
// own; deciding whether a block goes anywhere is the sink's job.
func (c *Capture) Start(stream Stream, sink func(Blob)) {
	if c == nil || stream == nil || sink == nil {
		return
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		pending := make([]float32, 0, c.blockSize*2)
		for {
			select {
			case <-stop:
				return
			case frame, ok := <-stream.Frames():
				if !ok {
					return
				}
				pending = append(pending, frame...)
				for len(pending) >= c.blockSize {
					block := pending[:c.blockSize]
					select {
					case <-stop:
						return
					default:
					}
					sink(FloatToBlob(block))
					pending = append(pending[:0], pending[c.blockSize:]...)
				}
			}
		}
	}()
}

// Stop detaches from the stream. No sink invocations happen after Stop
// returns. Idempotent.
func (c *Capture) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()
	<-done
}
