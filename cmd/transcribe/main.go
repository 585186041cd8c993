// Command transcribe cuts a 16-bit mono WAV file into pipeline-sized windows
// and sends each one through the configured transcription provider. It is
// the offline check for provider credentials and window sizing.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"speech-caption-service/internal/app"
	"speech-caption-service/internal/config"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/transcription"
)

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono)")
	speakerID := flag.Int("speaker", 0, "Speaker id attached to every window")
	flag.Parse()

	cfg := config.Load()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	format, err := capture.ReadWAVHeader(f)
	if err != nil {
		log.Fatalf("Invalid WAV file: %v", err)
	}
	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d",
		format.Channels, format.SampleRate, format.BitsPerSample)

	if int(format.SampleRate) != cfg.Capture.SampleRateHz {
		log.Printf("Warning: sample rate is %d Hz, pipeline expects %d Hz", format.SampleRate, cfg.Capture.SampleRateHz)
	}

	ctx := context.Background()
	client, err := app.NewTranscriptionClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create %s client: %v", cfg.STT.Provider, err)
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}
	guarded := transcription.NewGuarded(client, cfg.STT.Provider, cfg.STT.Timeout)

	window := cfg.Capture.WindowDuration
	chunk := make([]byte, int(window.Seconds()*float64(format.SampleRate))*2)
	var n int

	for {
		read, err := io.ReadFull(f, chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			log.Fatalf("Failed to read audio: %v", err)
		}
		n++

		w := capture.AudioWindow{
			Data:       append([]byte(nil), chunk[:read]...),
			SampleRate: int(format.SampleRate),
			Duration:   time.Duration(read/2) * time.Second / time.Duration(format.SampleRate),
			Encoding:   capture.EncodingLinear16,
			SpeakerID:  *speakerID,
			CapturedAt: time.Now(),
		}

		start := time.Now()
		res, terr := guarded.Transcribe(ctx, w)
		switch {
		case terr != nil:
			log.Printf("window %d: error kind=%s: %v", n, transcription.KindOf(terr), terr)
		case !res.Captionable():
			log.Printf("window %d: no speech (%v)", n, time.Since(start))
		default:
			log.Printf("window %d: speaker=%d confidence=%.2f %q (%v)",
				n, res.SpeakerID, res.Confidence, res.Text, time.Since(start))
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
	}

	log.Printf("Finished: %d windows of %v", n, window)
}
