package live

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxprep/voxprep/pkg/audio"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the live conversational model.
	DefaultModel = "models/gemini-2.0-flash-exp"

	defaultConnectTimeout = 15 * time.Second
)

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns a display form of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Source identifies which side of the conversation a transcription fragment
// belongs to.
type Source int

const (
	SourceUser Source = iota
	SourceAgent
)

// Handlers receives inbound session events. All callbacks run on the
// connection's read goroutine, in transport delivery order, and are never
// invoked after Close returns.
type Handlers struct {
	// OnFragment delivers a speech-to-text fragment. Text is cumulative.
	OnFragment func(source Source, text string, final bool)

	// OnAudio delivers a base64 PCM chunk of agent speech.
	OnAudio func(b64 string)

	// OnTurnComplete signals the end of the agent's turn.
	OnTurnComplete func()

	// OnInterrupted signals the user barged in over agent speech.
	OnInterrupted func()

	// OnError is fatal to the connection; the session is dead afterwards.
	OnError func(error)
}

// Config describes one live session.
type Config struct {
	// Model overrides DefaultModel.
	Model string

	// SystemInstruction steers the agent for the whole session.
	SystemInstruction string

	// Voice is the prebuilt voice name for agent speech.
	Voice string

	// Handlers receive inbound events.
	Handlers Handlers
}

// Session is one open streaming connection to the remote agent. Sends are
// fire-and-forget; audio and directives sent while the connection is not open
// are silently dropped, since capture and connection setup race at session
// start.
type Session interface {
	SendAudio(blob audio.Blob)
	SendDirective(text string)
	State() State
	Close() error
}

// DialFunc opens a live session. Controllers receive their dialer at
// construction so tests can substitute doubles.
type DialFunc func(ctx context.Context, cfg Config) (Session, error)

// Dialer dials real Gemini Live sessions.
type Dialer struct {
	// APIKey authenticates against the service. Required.
	APIKey string

	// Endpoint overrides DefaultEndpoint.
	Endpoint string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a live websocket session.
type Conn struct {
	id       string
	conn     *websocket.Conn
	handlers Handlers
	logger   *slog.Logger

	state atomic.Int32

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// Dial opens a session: websocket handshake, setup frame, then waits for the
// server's setupComplete before handing the connection over.
func (d *Dialer) Dial(ctx context.Context, cfg Config) (Session, error) {
	if d == nil || d.APIKey == "" {
		return nil, fmt.Errorf("live: api key is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	wsURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("live: invalid endpoint: %w", err)
	}
	query := wsURL.Query()
	query.Set("key", d.APIKey)
	wsURL.RawQuery = query.Encode()

	c := &Conn{
		id:       uuid.NewString(),
		handlers: cfg.Handlers,
		logger:   logger,
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	wsConn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL.String(), http.Header{})
	if err != nil {
		c.state.Store(int32(StateClosed))
		close(c.done)
		if resp != nil {
			return nil, fmt.Errorf("live: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live: dial failed: %w", err)
	}
	c.conn = wsConn

	setup := clientFrame{Setup: &Setup{
		Model: model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
		InputAudioTranscription:  &TranscriptionConfig{},
		OutputAudioTranscription: &TranscriptionConfig{},
	}}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &Content{Parts: []Part{{Text: cfg.SystemInstruction}}}
	}
	if err := wsConn.WriteJSON(setup); err != nil {
		c.abortDial()
		return nil, fmt.Errorf("live: send setup: %w", err)
	}

	_ = wsConn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	if err := c.awaitSetupComplete(); err != nil {
		c.abortDial()
		return nil, err
	}
	_ = wsConn.SetReadDeadline(time.Time{})

	c.state.Store(int32(StateOpen))
	logger.Debug("live session open", "session_id", c.id, "model", model, "voice", cfg.Voice)
	go c.readLoop()
	return c, nil
}

func (c *Conn) abortDial() {
	c.state.Store(int32(StateClosed))
	_ = c.conn.Close()
	close(c.done)
}

// awaitSetupComplete consumes frames until setupComplete. The remote rejecting
// the configuration surfaces as a close or read error here.
func (c *Conn) awaitSetupComplete() error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("live: setup rejected: %w", err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		events, err := decodeServerFrame(data)
		if err != nil {
			return err
		}
		for _, event := range events {
			if event.kind == eventSetupComplete {
				return nil
			}
		}
	}
}

// State returns the connection state.
func (c *Conn) State() State {
	if c == nil {
		return StateClosed
	}
	return State(c.state.Load())
}

// SendAudio forwards one encoded microphone block. Dropped silently unless the
// connection is open.
func (c *Conn) SendAudio(blob audio.Blob) {
	if c == nil || c.State() != StateOpen {
		return
	}
	frame := clientFrame{RealtimeInput: &RealtimeInput{
		MediaChunks: []InlineData{{MIMEType: blob.MIMEType, Data: blob.Data}},
	}}
	c.sendJSON(frame)
}

// SendDirective sends an out-of-band text instruction to steer the agent.
// Dropped silently unless the connection is open.
func (c *Conn) SendDirective(text string) {
	if c == nil || c.State() != StateOpen || text == "" {
		return
	}
	frame := clientFrame{ClientContent: &ClientContent{
		Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		TurnComplete: true,
	}}
	c.sendJSON(frame)
}

func (c *Conn) sendJSON(v any) {
	if c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug("live write failed", "session_id", c.id, "error", err)
	}
}

// Close transitions to closed from any state and waits for the read loop to
// drain, guaranteeing no handler runs after it returns. Idempotent.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.state.Store(int32(StateClosed))
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.state.Store(int32(StateClosed))
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emitError(fmt.Errorf("live: connection closed by server: %w", err))
				return
			}
			c.emitError(fmt.Errorf("live: read failed: %w", err))
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		events, err := decodeServerFrame(data)
		if err != nil {
			// One undecodable frame is not fatal to an otherwise healthy stream.
			c.logger.Warn("live frame dropped", "session_id", c.id, "error", err)
			continue
		}
		for _, event := range events {
			if c.closed.Load() {
				return
			}
			c.dispatch(event)
		}
	}
}

func (c *Conn) dispatch(event serverEvent) {
	switch event.kind {
	case eventInputTranscription, eventOutputTranscription:
		if c.handlers.OnFragment != nil {
			c.handlers.OnFragment(event.source, event.text, event.final)
		}
	case eventAudioChunk:
		if c.handlers.OnAudio != nil {
			c.handlers.OnAudio(event.audioB64)
		}
	case eventTurnComplete:
		if c.handlers.OnTurnComplete != nil {
			c.handlers.OnTurnComplete()
		}
	case eventInterrupted:
		if c.handlers.OnInterrupted != nil {
			c.handlers.OnInterrupted()
		}
	case eventGoAway:
		c.logger.Warn("live server going away", "session_id", c.id, "time_left", event.goAway.TimeLeft)
	}
}

func (c *Conn) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}
