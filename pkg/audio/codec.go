// Package audio provides the capture, codec, and playback plumbing shared by
// interview session controllers.
//
// All audio sent to the remote agent is 16 kHz mono 16-bit little-endian PCM,
// base64-encoded; all audio received back is 24 kHz mono in the same encoding.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	// CaptureRate is the microphone capture sample rate in Hz.
	CaptureRate = 16000

	// PlaybackRate is the agent audio playback sample rate in Hz.
	PlaybackRate = 24000

	// CaptureMIMEType is the wire mime type for outbound microphone audio.
	CaptureMIMEType = "audio/pcm;rate=16000"
)

var (
	// ErrMalformedPayload indicates a base64 payload that could not be decoded.
	// Callers drop the fragment; one bad payload never tears down a session.
	ErrMalformedPayload = errors.New("audio: malformed base64 payload")

	// ErrTruncatedPCM indicates a PCM byte payload whose length is not a whole
	// multiple of the frame size (2 bytes per sample per channel).
	ErrTruncatedPCM = errors.New("audio: truncated pcm payload")
)

// Blob is an encoded audio block in the wire format.
type Blob struct {
	Data     string
	MIMEType string
}

// Buffer is a decoded, de-interleaved floating point sample buffer ready for
// playback scheduling. Planes holds one sample slice per channel.
type Buffer struct {
	SampleRate int
	Planes     [][]float32
}

// FrameCount returns the number of sample frames per channel.
func (b *Buffer) FrameCount() int {
	if b == nil || len(b.Planes) == 0 {
		return 0
	}
	return len(b.Planes[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.FrameCount()) * time.Second / time.Duration(b.SampleRate)
}

// DecodeBase64 decodes a standard base64 payload.
func DecodeBase64(s string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return out, nil
}

// EncodeBase64 encodes bytes as standard base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// FloatToBlob quantizes float32 samples in [-1, 1] to 16-bit little-endian PCM
// and wraps them in a wire blob at the capture rate.
//
// Out-of-range samples are not clamped; the conversion wraps like hardware PCM.
func FloatToBlob(samples []float32) Blob {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int32(s * 32768))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(uint16(v) >> 8)
	}
	return Blob{Data: EncodeBase64(pcm), MIMEType: CaptureMIMEType}
}

// PCMToBuffer de-quantizes little-endian 16-bit PCM into a de-interleaved
// float32 buffer. Returns ErrTruncatedPCM when the byte length is not a whole
// multiple of 2*channels.
func PCMToBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: channels must be positive, got %d", channels)
	}
	frameSize := 2 * channels
	if len(pcm)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedPCM, len(pcm), frameSize)
	}

	frames := len(pcm) / frameSize
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			off := f*frameSize + ch*2
			v := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			planes[ch][f] = float32(v) / 32768
		}
	}
	return &Buffer{SampleRate: sampleRate, Planes: planes}, nil
}
