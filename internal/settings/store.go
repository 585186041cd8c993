// Package settings holds the user-facing preferences the captioning core
// reads: isolation policy, caption style, speaker names and positions, and
// acoustic event sources. Values are persisted to a YAML file on every change.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"speech-caption-service/internal/models"
	"speech-caption-service/internal/observability/logging"
)

// DefaultHUDDisplayTime is how long a caption stays up without a new one.
const DefaultHUDDisplayTime = 5 * time.Second

// DefaultHUDOffset places the HUD two meters ahead, slightly below eye level.
var DefaultHUDOffset = models.Vec3{X: 0, Y: -0.2, Z: 2}

// DefaultAcousticSources are offered when the file defines none.
var DefaultAcousticSources = []models.AcousticSource{
	{ID: "doorbell", Name: "Doorbell", Offset: models.Vec3{X: 1.5, Y: 0, Z: 2}},
	{ID: "alarm", Name: "Alarm", Offset: models.Vec3{X: -1.5, Y: 0.5, Z: 2}},
	{ID: "knock", Name: "Knocking", Offset: models.Vec3{X: 0, Y: 0, Z: -2}},
}

// file is the on-disk layout.
type file struct {
	Isolation struct {
		Enabled         bool `yaml:"enabled"`
		TargetSpeakerID int  `yaml:"targetSpeakerId"`
	} `yaml:"isolation"`
	Caption struct {
		FontSize              int         `yaml:"fontSize"`
		Color                 string      `yaml:"color"`
		TextPosition          string      `yaml:"textPosition"`
		HUDOffset             models.Vec3 `yaml:"hudOffset"`
		HUDDisplayTimeSeconds float64     `yaml:"hudDisplayTimeSeconds"`
	} `yaml:"caption"`
	Speakers struct {
		Names     map[int]string      `yaml:"names,omitempty"`
		Positions map[int]models.Vec3 `yaml:"positions,omitempty"`
	} `yaml:"speakers"`
	AcousticSources []models.AcousticSource `yaml:"acousticSources,omitempty"`
}

// Store is a concurrency-safe settings object. The pipeline only reads it;
// the control API and onboarding write it.
type Store struct {
	path   string
	logger zerolog.Logger

	mu             sync.RWMutex
	isolation      models.IsolationPolicy
	style          models.CaptionStyle
	hudDisplayTime time.Duration
	names          map[int]string
	positions      map[int]models.Vec3
	sources        []models.AcousticSource

	subMu   sync.Mutex
	subs    map[uint64]func(models.TextPosition)
	nextSub uint64
}

// NewMemory returns a store with defaults that is never written to disk.
func NewMemory() *Store {
	return &Store{
		logger: logging.WithComponent("settings"),
		style: models.CaptionStyle{
			FontSize:     models.DefaultFontSize,
			Color:        models.ColorWhite,
			TextPosition: models.TextPositionCenter,
			HUDOffset:    DefaultHUDOffset,
		},
		hudDisplayTime: DefaultHUDDisplayTime,
		names:          make(map[int]string),
		positions:      make(map[int]models.Vec3),
		sources:        append([]models.AcousticSource(nil), DefaultAcousticSources...),
		subs:           make(map[uint64]func(models.TextPosition)),
	}
}

// Load reads settings from path. A missing file yields defaults; the file is
// created on the first change.
func Load(path string) (*Store, error) {
	s := NewMemory()
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info().Str("path", path).Msg("No settings file, using defaults")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.apply(f)

	s.logger.Info().
		Str("path", path).
		Int("speakers", len(s.names)).
		Int("acousticSources", len(s.sources)).
		Msg("Settings loaded")
	return s, nil
}

// apply copies file values over defaults, ignoring invalid entries.
func (s *Store) apply(f file) {
	s.isolation = models.IsolationPolicy{
		Enabled:         f.Isolation.Enabled,
		TargetSpeakerID: f.Isolation.TargetSpeakerID,
	}
	if f.Caption.FontSize != 0 {
		s.style.FontSize = clampFontSize(f.Caption.FontSize)
	}
	if c, err := models.ParseColor(f.Caption.Color); err == nil {
		s.style.Color = c
	}
	if p, err := models.ParseTextPosition(f.Caption.TextPosition); err == nil {
		s.style.TextPosition = p
	}
	if f.Caption.HUDOffset != (models.Vec3{}) {
		s.style.HUDOffset = f.Caption.HUDOffset
	}
	if f.Caption.HUDDisplayTimeSeconds > 0 {
		s.hudDisplayTime = time.Duration(f.Caption.HUDDisplayTimeSeconds * float64(time.Second))
	}
	for id, name := range f.Speakers.Names {
		if name = strings.TrimSpace(name); name != "" {
			s.names[id] = name
		}
	}
	for id, pos := range f.Speakers.Positions {
		s.positions[id] = pos
	}
	if len(f.AcousticSources) > 0 {
		s.sources = s.sources[:0]
		for _, src := range f.AcousticSources {
			if src.ID != "" {
				s.sources = append(s.sources, src)
			}
		}
	}
}

// snapshot must be called with mu held.
func (s *Store) snapshot() file {
	var f file
	f.Isolation.Enabled = s.isolation.Enabled
	f.Isolation.TargetSpeakerID = s.isolation.TargetSpeakerID
	f.Caption.FontSize = s.style.FontSize
	f.Caption.Color = string(s.style.Color)
	f.Caption.TextPosition = s.style.TextPosition.String()
	f.Caption.HUDOffset = s.style.HUDOffset
	f.Caption.HUDDisplayTimeSeconds = s.hudDisplayTime.Seconds()
	if len(s.names) > 0 {
		f.Speakers.Names = make(map[int]string, len(s.names))
		for id, n := range s.names {
			f.Speakers.Names[id] = n
		}
	}
	if len(s.positions) > 0 {
		f.Speakers.Positions = make(map[int]models.Vec3, len(s.positions))
		for id, p := range s.positions {
			f.Speakers.Positions[id] = p
		}
	}
	f.AcousticSources = append([]models.AcousticSource(nil), s.sources...)
	return f
}

// save writes the file atomically. It must be called with mu held.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// IsolationPolicy returns the current isolation policy.
func (s *Store) IsolationPolicy() models.IsolationPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isolation
}

// SetIsolation updates and persists the isolation policy.
func (s *Store) SetIsolation(p models.IsolationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isolation = p
	s.logger.Info().
		Bool("enabled", p.Enabled).
		Int("targetSpeakerId", p.TargetSpeakerID).
		Msg("Isolation policy updated")
	return s.save()
}

// CaptionStyle returns the current caption style.
func (s *Store) CaptionStyle() models.CaptionStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

// HUDDisplayTime returns how long a caption stays visible.
func (s *Store) HUDDisplayTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hudDisplayTime
}

// SetHUDDisplayTime updates the caption lifetime. Non-positive values are rejected.
func (s *Store) SetHUDDisplayTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("hud display time must be positive, got %v", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hudDisplayTime = d
	return s.save()
}

// SetFontSize stores size clamped to the supported range and returns the stored value.
func (s *Store) SetFontSize(size int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style.FontSize = clampFontSize(size)
	return s.style.FontSize, s.save()
}

// SetCaptionColor updates the caption color.
func (s *Store) SetCaptionColor(c models.Color) error {
	if _, err := models.ParseColor(string(c)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style.Color = c
	return s.save()
}

// SetHUDOffset updates the viewer-relative HUD offset.
func (s *Store) SetHUDOffset(v models.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style.HUDOffset = v
	return s.save()
}

// SetTextPosition updates the text position and notifies subscribers when it changed.
func (s *Store) SetTextPosition(p models.TextPosition) error {
	s.mu.Lock()
	changed := s.style.TextPosition != p
	s.style.TextPosition = p
	err := s.save()
	s.mu.Unlock()

	if changed {
		s.notifyTextPosition(p)
	}
	return err
}

// OnTextPositionChanged registers fn and returns a function that removes it.
func (s *Store) OnTextPositionChanged(fn func(models.TextPosition)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notifyTextPosition(p models.TextPosition) {
	s.subMu.Lock()
	fns := make([]func(models.TextPosition), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// SpeakerNames returns a copy of the persisted speaker names.
func (s *Store) SpeakerNames() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.names))
	for id, n := range s.names {
		out[id] = n
	}
	return out
}

// SetSpeakerName persists a speaker's display name.
func (s *Store) SetSpeakerName(id int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[id] = name
	return s.save()
}

// SpeakerPosition returns the spatial position configured for a speaker.
func (s *Store) SpeakerPosition(id int) (models.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

// SetSpeakerPosition pins a speaker's captions to a position in viewer space.
func (s *Store) SetSpeakerPosition(id int, p models.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = p
	return s.save()
}

// AcousticSources returns the configured sources sorted by id.
func (s *Store) AcousticSources() []models.AcousticSource {
	s.mu.RLock()
	out := append([]models.AcousticSource(nil), s.sources...)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AcousticSource looks up a source by id.
func (s *Store) AcousticSource(id string) (models.AcousticSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.ID == id {
			return src, true
		}
	}
	return models.AcousticSource{}, false
}

func clampFontSize(size int) int {
	if size < models.MinFontSize {
		return models.MinFontSize
	}
	if size > models.MaxFontSize {
		return models.MaxFontSize
	}
	return size
}
