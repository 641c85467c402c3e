package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}

	s := &cfg.Session
	if s.BufferMS == 0 {
		s.BufferMS = 10
	}
	if s.Format.SampleRate == 0 {
		s.Format.SampleRate = 48000
	}
	if s.Format.Channels == 0 {
		s.Format.Channels = 2
	}
	if s.Format.Kind == "" {
		s.Format.Kind = "float32"
	}
	if s.Mixer.Mode == "" {
		s.Mixer.Mode = MixAverage
	}
	if s.Silence != nil {
		if s.Silence.ThresholdDB == 0 {
			s.Silence.ThresholdDB = -40
		}
		if s.Silence.MinSilenceMS == 0 {
			s.Silence.MinSilenceMS = 1000
		}
	}
	if s.Normalizer != nil && s.Normalizer.LookAheadMS == 0 {
		s.Normalizer.LookAheadMS = 20
	}
	for i := range s.Sinks {
		if s.Sinks[i].Name == "" {
			s.Sinks[i].Name = string(s.Sinks[i].Type)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics are enabled"))
	}

	s := cfg.Session

	if s.BufferMS < 1 || s.BufferMS > 1000 {
		errs = append(errs, fmt.Errorf("session.buffer_ms %d is out of range [1, 1000]", s.BufferMS))
	}
	switch s.Format.Kind {
	case "float32", "int16", "int24", "int32":
	default:
		errs = append(errs, fmt.Errorf("session.format.kind %q is invalid; valid values: float32, int16, int24, int32", s.Format.Kind))
	}
	if err := s.Format.ToFormat().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session.format: %w", err))
	}

	if len(s.Sources) == 0 {
		errs = append(errs, errors.New("session.sources must list at least one source"))
	}
	weighted := s.Mixer.Mode == MixWeighted && len(s.Sources) > 1
	namesSeen := make(map[string]int, len(s.Sources))
	var weightSum float64
	for i, src := range s.Sources {
		prefix := fmt.Sprintf("session.sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[src.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of session.sources[%d]", prefix, src.Name, prev))
			}
			namesSeen[src.Name] = i
		}
		if !src.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: microphone, system, tone, silence", prefix, src.Type))
		}
		if src.Weight < 0 || src.Weight > 1 {
			errs = append(errs, fmt.Errorf("%s.weight %.2f is out of range [0, 1]", prefix, src.Weight))
		}
		weightSum += src.Weight
		if src.Type == SourceTone {
			nyquist := float64(s.Format.SampleRate) / 2
			if src.Frequency <= 0 || src.Frequency >= nyquist {
				errs = append(errs, fmt.Errorf("%s.frequency %.1f is out of range (0, %.0f)", prefix, src.Frequency, nyquist))
			}
		}
	}
	if weighted && weightSum == 0 {
		errs = append(errs, errors.New("session.mixer.mode is weighted but all source weights are zero"))
	}
	if len(s.Sources) > 1 {
		if !s.Mixer.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("session.mixer.mode %q is invalid; valid values: sum, average, weighted", s.Mixer.Mode))
		}
		if n := len(s.Sources); n > 8 {
			errs = append(errs, fmt.Errorf("session has %d sources; the mixer accepts at most 8", n))
		}
	}

	if s.Volume != nil {
		if s.Volume.RampMS < 0 {
			errs = append(errs, fmt.Errorf("session.volume.ramp_ms %d must not be negative", s.Volume.RampMS))
		}
	}
	if s.Silence != nil {
		if s.Silence.ThresholdDB >= 0 {
			errs = append(errs, fmt.Errorf("session.silence.threshold_db %.1f must be negative", s.Silence.ThresholdDB))
		}
		if s.Silence.MinSilenceMS <= 0 {
			errs = append(errs, fmt.Errorf("session.silence.min_silence_ms %d must be positive", s.Silence.MinSilenceMS))
		}
	}
	if s.Normalizer != nil {
		if s.Normalizer.TargetDB > 0 {
			errs = append(errs, fmt.Errorf("session.normalizer.target_db %.1f must be at or below 0", s.Normalizer.TargetDB))
		}
		if s.Normalizer.LookAheadMS <= 0 {
			errs = append(errs, fmt.Errorf("session.normalizer.lookahead_ms %d must be positive", s.Normalizer.LookAheadMS))
		}
	}
	if s.Resample != nil {
		if s.Resample.Rate < 1 || s.Resample.Rate > audio.MaxSampleRate {
			errs = append(errs, fmt.Errorf("session.resample.rate %d is out of range [1, %d]", s.Resample.Rate, audio.MaxSampleRate))
		}
		if s.Resample.ChunkFrames < 0 {
			errs = append(errs, fmt.Errorf("session.resample.chunk_frames %d must not be negative", s.Resample.ChunkFrames))
		}
	}

	if len(s.Sinks) == 0 {
		errs = append(errs, errors.New("session.sinks must list at least one sink"))
	}
	for i, snk := range s.Sinks {
		prefix := fmt.Sprintf("session.sinks[%d]", i)
		if !snk.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: wav, buffer, null", prefix, snk.Type))
		}
		if snk.Type == SinkWAV && snk.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required for wav sinks", prefix))
		}
		if snk.MaxBuffers < 0 {
			errs = append(errs, fmt.Errorf("%s.max_buffers %d must not be negative", prefix, snk.MaxBuffers))
		}
	}

	// Advisory checks that do not fail the load.
	if weighted && weightSum != 0 && (weightSum < 0.99 || weightSum > 1.01) {
		slog.Warn("source weights do not sum to 1; the mix level may surprise",
			"sum", weightSum,
		)
	}
	if s.Mixer.Limiter != nil && !*s.Mixer.Limiter && s.Mixer.Mode == MixSum {
		slog.Warn("sum mixing without the limiter can clip; downstream sinks receive over-range samples")
	}

	return errors.Join(errs...)
}
