// Package device binds real audio hardware to the session pipelines: a malgo
// microphone behind audio.Stream and an oto speaker behind audio.Sink.
package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/voxprep/voxprep/pkg/audio"
)

// Mic captures microphone audio at the session capture rate and exposes it as
// an audio.Stream. Frames are float32 mono samples.
type Mic struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	frames chan []float32
}

// OpenMic initializes the default capture device and starts it.
func OpenMic() (*Mic, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}

	m := &Mic{
		ctx: ctx,
		// Roomy buffer so a slow consumer drops audio instead of stalling the
		// device callback.
		frames: make(chan []float32, 256),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(audio.CaptureRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			frame := make([]float32, len(input)/4)
			for i := range frame {
				bits := binary.LittleEndian.Uint32(input[i*4:])
				frame[i] = math.Float32frombits(bits)
			}
			select {
			case m.frames <- frame:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, fmt.Errorf("device: init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		return nil, fmt.Errorf("device: start microphone: %w", err)
	}
	return m, nil
}

// Frames implements audio.Stream.
func (m *Mic) Frames() <-chan []float32 {
	return m.frames
}

// Close stops the device and releases the audio context.
func (m *Mic) Close() {
	if m == nil {
		return
	}
	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx = nil
	}
}
