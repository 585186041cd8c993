package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/service/caption"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/speaker"
	"speech-caption-service/internal/service/transcription"
	"speech-caption-service/internal/settings"
)

// gatedClient answers call i with results[i] once release[i] is closed.
// Call order is tick order only if each tick's call has started before the
// next tick runs.
type gatedClient struct {
	mu      sync.Mutex
	calls   int
	first   time.Time
	results []transcription.Result
	errs    []error
	release []chan struct{}
}

func newGatedClient(results ...transcription.Result) *gatedClient {
	c := &gatedClient{results: results, errs: make([]error, len(results))}
	for range results {
		c.release = append(c.release, make(chan struct{}))
	}
	return c
}

func (c *gatedClient) Transcribe(ctx context.Context, w capture.AudioWindow) (transcription.Result, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	if i == 0 {
		c.first = time.Now()
	}
	c.mu.Unlock()

	if i >= len(c.results) {
		return transcription.Result{}, nil
	}
	select {
	case <-c.release[i]:
		return c.results[i], c.errs[i]
	case <-ctx.Done():
		return transcription.Result{}, ctx.Err()
	}
}

func (c *gatedClient) firstCall() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first
}

func (c *gatedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type testDisplay struct {
	mu     sync.Mutex
	events []models.CaptionEvent
}

func (d *testDisplay) Show(ev models.CaptionEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *testDisplay) shown() []models.CaptionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.CaptionEvent(nil), d.events...)
}

type testHaptics struct {
	mu     sync.Mutex
	pulses []string
}

func (h *testHaptics) PulseHaptic(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pulses = append(h.pulses, handle)
}

type testPublisher struct {
	mu     sync.Mutex
	events []models.CaptionDisplayed
}

func (p *testPublisher) PublishCaption(ctx context.Context, ev models.CaptionDisplayed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *testPublisher) published() []models.CaptionDisplayed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.CaptionDisplayed(nil), p.events...)
}

type testOnboarder struct {
	mu  sync.Mutex
	ids []int
}

func (o *testOnboarder) RequestOnboarding(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
}

type failingSource struct{}

func (failingSource) Start(ctx context.Context) error {
	return capture.ErrCaptureUnavailable
}
func (failingSource) Snapshot(d time.Duration) capture.AudioWindow { return capture.AudioWindow{} }
func (failingSource) Stop() error                                  { return nil }

type fixture struct {
	source    *capture.SyntheticSource
	store     *settings.Store
	registry  *speaker.Registry
	onboarder *testOnboarder
	display   *testDisplay
	haptics   *testHaptics
	publisher *testPublisher
	pipeline  *Pipeline
}

func newFixture(client transcription.Client) *fixture {
	f := &fixture{
		source:    capture.NewSyntheticSource(capture.Options{SampleRateHz: 1000, BufferDuration: 10 * time.Second}, 0, 0),
		store:     settings.NewMemory(),
		onboarder: &testOnboarder{},
		display:   &testDisplay{},
		haptics:   &testHaptics{},
		publisher: &testPublisher{},
	}
	f.registry = speaker.NewRegistry(f.store)
	router := caption.NewRouter(f.store, f.registry, f.onboarder, f.display, f.store)
	f.pipeline = New(f.source, client, router, f.display, f.store, f.haptics, f.publisher, Options{
		WindowDuration: 3 * time.Second,
		ViewerOrigin:   models.Vec3{X: 0, Y: 1.6, Z: 0},
	})
	f.source.Feed(make([]int16, 3000))
	return f
}

func said(speakerID int, text string) transcription.Result {
	return transcription.Result{Text: text, SpeakerID: speakerID, Confidence: 0.9, Success: true}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipeline_LateOlderResultIsDropped(t *testing.T) {
	client := newGatedClient(said(0, "hello"), said(0, "world"))
	f := newFixture(client)
	f.registry.Assign(0, "Host")
	ctx := context.Background()

	f.pipeline.runTick(ctx) // tick 1: "hello"
	waitFor(t, func() bool { return client.callCount() == 1 })
	f.pipeline.runTick(ctx) // tick 2: "world"
	waitFor(t, func() bool { return client.callCount() == 2 })

	close(client.release[1]) // tick 2 completes first
	waitFor(t, func() bool { return len(f.display.shown()) == 1 })

	close(client.release[0]) // tick 1 arrives late
	f.pipeline.calls.Wait()

	shown := f.display.shown()
	if len(shown) != 1 {
		t.Fatalf("expected the late result to be dropped, got %d captions", len(shown))
	}
	if shown[0].Text != "world" || shown[0].Tick != 2 {
		t.Errorf("expected 'world' from tick 2, got %q from tick %d", shown[0].Text, shown[0].Tick)
	}
	if f.pipeline.Status().DisplayedTick != 2 {
		t.Errorf("expected displayed tick 2, got %d", f.pipeline.Status().DisplayedTick)
	}
}

func TestPipeline_InOrderResultsBothDisplayed(t *testing.T) {
	client := newGatedClient(said(0, "hello"), said(0, "world"))
	f := newFixture(client)
	f.registry.Assign(0, "Host")
	ctx := context.Background()

	f.pipeline.runTick(ctx)
	waitFor(t, func() bool { return client.callCount() == 1 })
	f.pipeline.runTick(ctx)
	waitFor(t, func() bool { return client.callCount() == 2 })

	close(client.release[0])
	waitFor(t, func() bool { return len(f.display.shown()) == 1 })
	close(client.release[1])
	f.pipeline.calls.Wait()

	shown := f.display.shown()
	if len(shown) != 2 || shown[1].Text != "world" {
		t.Fatalf("expected hello then world, got %+v", shown)
	}

	published := f.publisher.published()
	if len(published) != 2 {
		t.Fatalf("expected 2 published captions, got %d", len(published))
	}
	if published[1].DisplayName != "Host" || published[1].Tick != 2 || published[1].EventType != models.EventTypeCaptionDisplayed {
		t.Errorf("unexpected published event %+v", published[1])
	}
}

func TestPipeline_SuppressedResultDoesNotBlockOlderTick(t *testing.T) {
	// tick 2 is isolated out; tick 1 arriving afterwards is still the newest caption.
	client := newGatedClient(said(1, "kept"), said(5, "isolated"))
	f := newFixture(client)
	f.registry.Assign(1, "Alice")
	f.store.SetIsolation(models.IsolationPolicy{Enabled: true, TargetSpeakerID: 1})
	ctx := context.Background()

	f.pipeline.runTick(ctx)
	waitFor(t, func() bool { return client.callCount() == 1 })
	f.pipeline.runTick(ctx)
	waitFor(t, func() bool { return client.callCount() == 2 })

	close(client.release[1])
	close(client.release[0])
	f.pipeline.calls.Wait()

	shown := f.display.shown()
	if len(shown) != 1 || shown[0].Text != "kept" {
		t.Errorf("expected only 'kept', got %+v", shown)
	}
	if len(f.onboarder.ids) != 0 {
		t.Error("isolated speaker must not trigger onboarding")
	}
}

func TestPipeline_TranscriptionErrorSkipsTick(t *testing.T) {
	client := newGatedClient(said(0, "lost"), said(0, "next"))
	client.errs[0] = &transcription.ServiceError{Code: 503}
	f := newFixture(client)
	f.registry.Assign(0, "Host")
	ctx := context.Background()

	f.pipeline.runTick(ctx)
	close(client.release[0])
	f.pipeline.calls.Wait()

	if len(f.display.shown()) != 0 {
		t.Fatal("expected no caption for a failed tick")
	}

	f.pipeline.runTick(ctx)
	close(client.release[1])
	f.pipeline.calls.Wait()

	if shown := f.display.shown(); len(shown) != 1 || shown[0].Text != "next" {
		t.Errorf("expected the next tick to caption normally, got %+v", shown)
	}
	if client.callCount() != 2 {
		t.Errorf("expected no retry of the failed window, got %d calls", client.callCount())
	}
}

func TestPipeline_UnknownSpeakerOnboards(t *testing.T) {
	client := newGatedClient(said(7, "who am i"))
	f := newFixture(client)

	f.pipeline.runTick(context.Background())
	close(client.release[0])
	f.pipeline.calls.Wait()

	if len(f.display.shown()) != 0 {
		t.Error("expected no caption for unnamed speaker")
	}
	if len(f.onboarder.ids) != 1 || f.onboarder.ids[0] != 7 {
		t.Errorf("expected onboarding for 7, got %v", f.onboarder.ids)
	}
	if f.pipeline.Status().DisplayedTick != 0 {
		t.Error("onboarding must not advance the displayed tick")
	}
}

func TestPipeline_EmptyWindowSkipsTick(t *testing.T) {
	client := newGatedClient()
	f := newFixture(client)
	f.source = capture.NewSyntheticSource(capture.DefaultOptions(), 0, 0)
	f.pipeline.source = f.source

	f.pipeline.runTick(context.Background())

	if client.callCount() != 0 {
		t.Error("expected no transcription for an empty window")
	}
	if f.pipeline.Status().Tick != 1 {
		t.Errorf("expected the tick to be numbered, got %d", f.pipeline.Status().Tick)
	}
}

func TestPipeline_WarmUpDelaysFirstTick(t *testing.T) {
	client := newGatedClient()
	f := newFixture(client)
	f.pipeline.opts.WindowDuration = 100 * time.Millisecond
	f.pipeline.opts.WarmUp = 50 * time.Millisecond

	start := time.Now()
	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.pipeline.Stop()

	waitFor(t, func() bool { return client.callCount() >= 1 })

	if elapsed := client.firstCall().Sub(start); elapsed < 150*time.Millisecond {
		t.Errorf("first transcription after %v, expected warm-up plus one window (>= 150ms)", elapsed)
	}
}

func TestPipeline_WarmUpLongerThanWindowDoesNotDropTicks(t *testing.T) {
	client := newGatedClient()
	f := newFixture(client)
	f.pipeline.opts.WindowDuration = 20 * time.Millisecond
	f.pipeline.opts.WarmUp = 60 * time.Millisecond

	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return client.callCount() >= 2 })
	if err := f.pipeline.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Warm-up delays the cadence instead of consuming tick numbers.
	ticks := f.pipeline.Status().Tick
	if client.callCount() != int(ticks) {
		t.Errorf("expected every tick to transcribe, got %d calls for %d ticks", client.callCount(), ticks)
	}
}

func TestPipeline_StopDuringWarmUp(t *testing.T) {
	client := newGatedClient()
	f := newFixture(client)
	f.pipeline.opts.WarmUp = time.Hour

	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- f.pipeline.Stop() }()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the warm-up wait")
	}
	if client.callCount() != 0 || f.pipeline.Status().Tick != 0 {
		t.Error("expected no ticks during warm-up")
	}
}

func TestPipeline_StartStop(t *testing.T) {
	client := newGatedClient(said(0, "never"))
	f := newFixture(client)
	f.pipeline.opts.WindowDuration = 20 * time.Millisecond

	if err := f.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.pipeline.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	status := f.pipeline.Status()
	if !status.Running || status.SessionID == "" {
		t.Errorf("expected running with a session id, got %+v", status)
	}

	waitFor(t, func() bool { return client.callCount() >= 1 })

	// The first call blocks until canceled; Stop must not hang on it.
	stopped := make(chan error, 1)
	go func() { stopped <- f.pipeline.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("unexpected stop error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel in-flight transcription")
	}

	if f.pipeline.Running() {
		t.Error("expected pipeline stopped")
	}
	if len(f.display.shown()) != 0 {
		t.Error("canceled transcription must not caption")
	}
	if err := f.pipeline.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestPipeline_StartFailsWithoutCapture(t *testing.T) {
	f := newFixture(newGatedClient())
	f.pipeline.source = failingSource{}

	err := f.pipeline.Start(context.Background())
	if !errors.Is(err, capture.ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
	if f.pipeline.Running() {
		t.Error("pipeline must not run without capture")
	}
}

func TestTriggerManualEvent(t *testing.T) {
	f := newFixture(newGatedClient())

	if err := f.pipeline.TriggerManualEvent("doorbell"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shown := f.display.shown()
	if len(shown) != 1 {
		t.Fatalf("expected one marker, got %d", len(shown))
	}
	ev := shown[0]
	if ev.Text != "Doorbell" || ev.SpeakerID != models.ManualSpeakerID {
		t.Errorf("unexpected manual event %+v", ev)
	}
	want := models.Vec3{X: 1.5, Y: 1.6, Z: 2}
	if ev.SpawnPosition == nil || *ev.SpawnPosition != want {
		t.Errorf("expected marker at %s, got %v", want, ev.SpawnPosition)
	}
	if len(f.haptics.pulses) != 1 || f.haptics.pulses[0] != HapticRightHand {
		t.Errorf("expected right hand pulse, got %v", f.haptics.pulses)
	}
	if published := f.publisher.published(); len(published) != 1 || !published[0].Manual {
		t.Errorf("expected a manual caption event, got %+v", published)
	}
}

func TestTriggerManualEvent_UnknownSource(t *testing.T) {
	f := newFixture(newGatedClient())

	err := f.pipeline.TriggerManualEvent("siren")
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	if len(f.display.shown()) != 0 || len(f.haptics.pulses) != 0 {
		t.Error("unknown source must have no effect")
	}
}

func TestTriggerManualEvent_BypassesStaleness(t *testing.T) {
	client := newGatedClient(said(0, "speech"))
	f := newFixture(client)
	f.registry.Assign(0, "Host")

	f.pipeline.runTick(context.Background())
	close(client.release[0])
	f.pipeline.calls.Wait()

	if err := f.pipeline.TriggerManualEvent("knock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shown := f.display.shown(); len(shown) != 2 || shown[1].Text != "Knocking" {
		t.Errorf("expected manual marker after speech caption, got %+v", shown)
	}
	if f.pipeline.Status().DisplayedTick != 1 {
		t.Error("manual events must not move the displayed tick")
	}
}
