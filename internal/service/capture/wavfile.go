package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
)

// wavHeaderSize is the canonical 44-byte PCM header.
const wavHeaderSize = 44

// replayChunk is how much audio is pushed per replay step.
const replayChunk = 100 * time.Millisecond

// EncodeWAV wraps 16-bit mono PCM in a canonical WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var b bytes.Buffer
	b.Grow(wavHeaderSize + len(pcm))
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(&b, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1))            // mono
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&b, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&b, binary.LittleEndian, uint16(16))           // bits per sample
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

// WAVFormat is the subset of a WAV header the replay source needs.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadWAVHeader parses and validates a canonical PCM WAV header.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, errors.New("not a valid WAV file")
	}
	f := WAVFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 {
		return f, fmt.Errorf("unsupported wav format %d, only PCM", f.AudioFormat)
	}
	if f.Channels != 1 || f.BitsPerSample != 16 {
		return f, fmt.Errorf("unsupported wav layout: %d channels, %d bits", f.Channels, f.BitsPerSample)
	}
	return f, nil
}

// WAVSource replays a 16-bit mono WAV file in real time, looping at EOF.
// It stands in for a microphone on headless hosts.
type WAVSource struct {
	buffer
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWAVSource creates a replay source for path.
func NewWAVSource(opts Options, path string) *WAVSource {
	return &WAVSource{
		buffer: newBuffer(opts),
		path:   path,
		logger: logging.WithComponent("capture"),
	}
}

// Start validates the file and begins replay.
func (s *WAVSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	pcm, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.replay(runCtx, pcm)

	s.logger.Info().
		Str("path", s.path).
		Int("samples", len(pcm)).
		Msg("WAV replay capture started")
	return nil
}

func (s *WAVSource) load() ([]int16, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, err := ReadWAVHeader(f)
	if err != nil {
		return nil, err
	}
	if int(format.SampleRate) != s.sampleRate {
		s.logger.Warn().
			Uint32("fileRate", format.SampleRate).
			Int("captureRate", s.sampleRate).
			Msg("WAV sample rate differs from capture rate, audio will be mistimed")
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read wav data: %w", err)
	}
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	if len(pcm) == 0 {
		return nil, errors.New("wav file has no audio")
	}
	return pcm, nil
}

func (s *WAVSource) replay(ctx context.Context, pcm []int16) {
	defer close(s.done)

	chunk := int(replayChunk.Seconds() * float64(s.sampleRate))
	ticker := time.NewTicker(replayChunk)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			end := pos + chunk
			if end > len(pcm) {
				end = len(pcm)
			}
			frame := make([]int16, end-pos)
			copy(frame, pcm[pos:end])
			s.write(frame)
			pos = end % len(pcm)
		}
	}
}

// Stop ends replay.
func (s *WAVSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
