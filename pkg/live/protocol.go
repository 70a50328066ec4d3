// Package live implements a full-duplex streaming connection to the Gemini
// Live API over its BidiGenerateContent websocket endpoint.
package live

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire message shapes for the v1beta BidiGenerateContent protocol. Field names
// follow the service's camelCase JSON.

// Content is a turn of conversation content.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is one piece of content: text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 payloads with a mime type.
type InlineData struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// PrebuiltVoiceConfig names one of the service's prebuilt voices.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

// VoiceConfig selects the agent voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// SpeechConfig configures speech synthesis.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// GenerationConfig configures the session's response generation.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// TranscriptionConfig enables transcription for one direction. The service
// takes an empty object.
type TranscriptionConfig struct{}

// Setup is the first client frame on a new connection.
type Setup struct {
	Model                    string               `json:"model"`
	GenerationConfig         *GenerationConfig    `json:"generationConfig,omitempty"`
	SystemInstruction        *Content             `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *TranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *TranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// RealtimeInput streams media toward the agent.
type RealtimeInput struct {
	MediaChunks []InlineData `json:"mediaChunks,omitempty"`
}

// ClientContent sends out-of-band text turns to steer the agent.
type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

type clientFrame struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
}

// Transcription is an incremental speech-to-text fragment. Text is cumulative
// for the in-flight utterance, not a delta.
type Transcription struct {
	Text     string `json:"text,omitempty"`
	Finished bool   `json:"finished,omitempty"`
}

// ServerContent carries the agent's incremental output.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// GoAway warns that the server will close the connection.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type serverFrame struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// serverEvent is a decoded inbound event, dispatched by kind so each handler
// stays independently testable.
type serverEvent struct {
	kind     eventKind
	source   Source
	text     string
	final    bool
	audioB64 string
	goAway   *GoAway
}

type eventKind int

const (
	eventSetupComplete eventKind = iota
	eventInputTranscription
	eventOutputTranscription
	eventAudioChunk
	eventTurnComplete
	eventInterrupted
	eventGoAway
)

// decodeServerFrame parses one inbound websocket text frame into zero or more
// events. A single serverContent frame can carry transcription, audio, and a
// turn boundary at once; events are emitted in a stable order: transcriptions,
// audio, interruption, turn completion.
func decodeServerFrame(data []byte) ([]serverEvent, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode server frame: %w", err)
	}

	var events []serverEvent
	if frame.SetupComplete != nil {
		events = append(events, serverEvent{kind: eventSetupComplete})
	}
	if sc := frame.ServerContent; sc != nil {
		if tr := sc.InputTranscription; tr != nil && strings.TrimSpace(tr.Text) != "" {
			events = append(events, serverEvent{
				kind:   eventInputTranscription,
				source: SourceUser,
				text:   tr.Text,
				final:  tr.Finished,
			})
		}
		if tr := sc.OutputTranscription; tr != nil && strings.TrimSpace(tr.Text) != "" {
			events = append(events, serverEvent{
				kind:   eventOutputTranscription,
				source: SourceAgent,
				text:   tr.Text,
				final:  tr.Finished,
			})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					events = append(events, serverEvent{
						kind:     eventAudioChunk,
						audioB64: part.InlineData.Data,
					})
				}
			}
		}
		if sc.Interrupted {
			events = append(events, serverEvent{kind: eventInterrupted})
		}
		if sc.TurnComplete {
			events = append(events, serverEvent{kind: eventTurnComplete})
		}
	}
	if frame.GoAway != nil {
		events = append(events, serverEvent{kind: eventGoAway, goAway: frame.GoAway})
	}
	return events, nil
}
