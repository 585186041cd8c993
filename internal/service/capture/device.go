package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
)

// framesPerBuffer is one PortAudio read, 64ms at 16 kHz.
const framesPerBuffer = 1024

// DeviceSource captures mono 16-bit audio from a PortAudio input device.
type DeviceSource struct {
	buffer
	deviceHint string
	logger     zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	frame   []int16
	running bool
	done    chan struct{}
}

// NewDeviceSource creates a source for the first input device whose name
// contains deviceHint, or the default input device when the hint is empty.
func NewDeviceSource(opts Options, deviceHint string) *DeviceSource {
	return &DeviceSource{
		buffer:     newBuffer(opts),
		deviceHint: deviceHint,
		logger:     logging.WithComponent("capture"),
		frame:      make([]int16, framesPerBuffer),
	}
}

// Start opens the device and begins the capture loop.
func (s *DeviceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", ErrCaptureUnavailable, err)
	}

	device, err := s.findDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = len(s.frame)

	stream, err := portaudio.OpenStream(params, s.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open %q: %v", ErrCaptureUnavailable, device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start %q: %v", ErrCaptureUnavailable, device.Name, err)
	}

	s.stream = stream
	s.running = true
	s.done = make(chan struct{})
	go s.readLoop()

	s.logger.Info().
		Str("device", device.Name).
		Int("sampleRate", s.sampleRate).
		Int("bufferSamples", s.ring.Cap()).
		Msg("Audio capture started")
	return nil
}

func (s *DeviceSource) findDevice() (*portaudio.DeviceInfo, error) {
	if s.deviceHint == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil || dev == nil || dev.MaxInputChannels < 1 {
			return nil, fmt.Errorf("%w: no default input device", ErrCaptureUnavailable)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", ErrCaptureUnavailable, err)
	}
	hint := strings.ToLower(s.deviceHint)
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), hint) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device matching %q", ErrCaptureUnavailable, s.deviceHint)
}

func (s *DeviceSource) readLoop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		running := s.running
		stream := s.stream
		s.mu.Unlock()
		if !running || stream == nil {
			return
		}

		available, err := stream.AvailableToRead()
		if err != nil || available < len(s.frame) {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Overflow errors still fill the frame; keep the audio.
		if err := stream.Read(); err != nil && err != portaudio.InputOverflowed {
			s.logger.Warn().Err(err).Msg("Capture read failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		frame := make([]int16, len(s.frame))
		copy(frame, s.frame)
		s.write(frame)
	}
}

// Stop ends capture and releases the device.
func (s *DeviceSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream := s.stream
	s.stream = nil
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}

	var err error
	if stream != nil {
		if e := stream.Stop(); e != nil {
			err = e
		}
		if e := stream.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := portaudio.Terminate(); e != nil && err == nil {
		err = e
	}

	s.logger.Info().Msg("Audio capture stopped")
	return err
}
