// Package config provides the configuration schema and loader for the
// tapedeck capture service.
package config

import (
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

// LogLevel controls log verbosity for the tapedeck service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceType selects the capture backend for a session input.
type SourceType string

const (
	// SourceMicrophone captures from a PortAudio input device.
	SourceMicrophone SourceType = "microphone"

	// SourceSystem captures the system loopback / monitor device.
	SourceSystem SourceType = "system"

	// SourceTone generates a fixed sine tone, mostly for pipeline checks.
	SourceTone SourceType = "tone"

	// SourceSilence generates digital silence at the session format.
	SourceSilence SourceType = "silence"
)

// IsValid reports whether s is a recognised source type.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceMicrophone, SourceSystem, SourceTone, SourceSilence:
		return true
	}
	return false
}

// SinkType selects the delivery backend for a session output.
type SinkType string

const (
	// SinkWAV writes a PCM WAV file.
	SinkWAV SinkType = "wav"

	// SinkBuffer retains recent buffers in memory for consumers to drain.
	SinkBuffer SinkType = "buffer"

	// SinkNull counts and discards, useful for measuring without storing.
	SinkNull SinkType = "null"
)

// IsValid reports whether s is a recognised sink type.
func (s SinkType) IsValid() bool {
	switch s {
	case SinkWAV, SinkBuffer, SinkNull:
		return true
	}
	return false
}

// MixMode mirrors the mixer's combination strategies for YAML use.
type MixMode string

const (
	MixSum      MixMode = "sum"
	MixAverage  MixMode = "average"
	MixWeighted MixMode = "weighted"
)

// IsValid reports whether m is a recognised mix mode.
func (m MixMode) IsValid() bool {
	switch m {
	case MixSum, MixAverage, MixWeighted:
		return true
	}
	return false
}

// Config is the root configuration structure for tapedeck.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	Metrics MetricsConfig `yaml:"metrics"`
	Session SessionConfig `yaml:"session"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address the scrape endpoint listens on
	// (e.g., ":9464"). Required when Enabled is true.
	ListenAddr string `yaml:"listen_addr"`
}

// SessionConfig describes a complete capture pipeline: its buffer cadence,
// sample format, input sources, processing stages, and output sinks.
type SessionConfig struct {
	// BufferMS is the tick interval and buffer duration in milliseconds.
	// Defaults to 10.
	BufferMS int `yaml:"buffer_ms"`

	// Format is the session's working sample format. Sources must deliver
	// it and sinks receive it (after the optional resampler).
	Format FormatConfig `yaml:"format"`

	// Sources lists the capture inputs. At least one is required; mixing
	// applies when there are two or more.
	Sources []SourceConfig `yaml:"sources"`

	// Mixer configures how multiple sources are combined. Ignored for a
	// single source.
	Mixer MixerConfig `yaml:"mixer"`

	// Volume configures the gain stage. When nil, unity gain is applied.
	Volume *VolumeConfig `yaml:"volume"`

	// Silence configures silence detection. When nil, detection is off.
	Silence *SilenceConfig `yaml:"silence"`

	// Normalizer configures peak normalization. When nil, the stage is off.
	Normalizer *NormalizerConfig `yaml:"normalizer"`

	// Resample, when set, converts the processed stream to this sample rate
	// before the sinks.
	Resample *ResampleConfig `yaml:"resample"`

	// Sinks lists the outputs. At least one is required; each sink gets its
	// own copy of every buffer.
	Sinks []SinkConfig `yaml:"sinks"`
}

// FormatConfig is the YAML form of [audio.Format].
type FormatConfig struct {
	// SampleRate in Hz (e.g., 48000).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the interleaved channel count (1 = mono, 2 = stereo).
	Channels int `yaml:"channels"`

	// Kind names the sample encoding: float32, int16, int24, or int32.
	Kind string `yaml:"kind"`
}

// ToFormat converts the YAML fields into an [audio.Format]. The result is
// not validated here; [Validate] reports schema-level problems and the audio
// layer re-checks on construction.
func (f FormatConfig) ToFormat() audio.Format {
	kind := audio.KindFloat32
	switch f.Kind {
	case "int16":
		kind = audio.KindInt16
	case "int24":
		kind = audio.KindInt24
	case "int32":
		kind = audio.KindInt32
	}
	return audio.Format{SampleRate: f.SampleRate, Channels: f.Channels, Kind: kind}
}

// SourceConfig describes a single capture input.
type SourceConfig struct {
	// Name identifies the source in logs, stats, and errors.
	Name string `yaml:"name"`

	// Type selects the capture backend.
	Type SourceType `yaml:"type"`

	// Device is the backend-specific device name. Empty selects the
	// backend's default device. Only meaningful for microphone and system
	// sources.
	Device string `yaml:"device"`

	// Weight is this source's share in weighted mixing, in [0, 1].
	Weight float64 `yaml:"weight"`

	// Frequency is the tone frequency in Hz for tone sources.
	Frequency float64 `yaml:"frequency"`

	// Amplitude is the tone peak level in [0, 1] for tone sources.
	Amplitude float64 `yaml:"amplitude"`
}

// MixerConfig configures combination of multiple sources.
type MixerConfig struct {
	// Mode selects the combination strategy. Defaults to "average".
	Mode MixMode `yaml:"mode"`

	// Limiter enables hard clipping of the mixed result to [-1, 1].
	// Defaults to true; set the pointer to false to disable.
	Limiter *bool `yaml:"limiter"`
}

// VolumeConfig configures the gain stage.
type VolumeConfig struct {
	// GainDB is the target gain in decibels. 0 means unity.
	GainDB float64 `yaml:"gain_db"`

	// RampMS ramps from unity to GainDB over this many milliseconds at
	// session start. 0 applies the gain immediately.
	RampMS int `yaml:"ramp_ms"`
}

// SilenceConfig configures silence detection.
type SilenceConfig struct {
	// ThresholdDB is the RMS level below which audio counts as silent.
	// Must be negative. Defaults to -40.
	ThresholdDB float64 `yaml:"threshold_db"`

	// MinSilenceMS is how long the level must stay below the threshold
	// before the stream is reported silent. Defaults to 1000.
	MinSilenceMS int `yaml:"min_silence_ms"`
}

// NormalizerConfig configures look-ahead peak normalization.
type NormalizerConfig struct {
	// TargetDB is the peak target in decibels, at or below 0.
	TargetDB float64 `yaml:"target_db"`

	// LookAheadMS is the analysis window in milliseconds. Defaults to 20.
	LookAheadMS int `yaml:"lookahead_ms"`
}

// ResampleConfig converts the stream's sample rate before the sinks.
type ResampleConfig struct {
	// Rate is the destination sample rate in Hz.
	Rate int `yaml:"rate"`

	// ChunkFrames sets the conversion chunk size in frames. 0 uses the
	// resampler default.
	ChunkFrames int `yaml:"chunk_frames"`
}

// SinkConfig describes a single output.
type SinkConfig struct {
	// Name identifies the sink in logs and stats. Defaults to the type.
	Name string `yaml:"name"`

	// Type selects the delivery backend.
	Type SinkType `yaml:"type"`

	// Path is the output file path for wav sinks.
	Path string `yaml:"path"`

	// MaxBuffers bounds the retained history of buffer sinks. 0 uses the
	// sink default.
	MaxBuffers int `yaml:"max_buffers"`
}

// BufferDuration returns the session tick interval.
func (s SessionConfig) BufferDuration() time.Duration {
	return time.Duration(s.BufferMS) * time.Millisecond
}
