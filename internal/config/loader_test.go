package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/tapedeck/internal/config"
)

const minimalYAML = `
session:
  sources:
    - name: mic
      type: silence
  sinks:
    - type: "null"
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Session.BufferMS != 10 {
		t.Errorf("BufferMS = %d, want 10", cfg.Session.BufferMS)
	}
	if cfg.Session.Format.SampleRate != 48000 || cfg.Session.Format.Channels != 2 {
		t.Errorf("format = %+v, want 48000 Hz stereo", cfg.Session.Format)
	}
	if cfg.Session.Mixer.Mode != config.MixAverage {
		t.Errorf("mixer mode = %q, want average", cfg.Session.Mixer.Mode)
	}
	if cfg.Session.Sinks[0].Name != "null" {
		t.Errorf("sink name defaults to type, got %q", cfg.Session.Sinks[0].Name)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  sources:
    - name: mic
      type: silence
      loudness: 3
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "loudness") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_RequiresSourcesAndSinks(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("session: {}\n"))
	if err == nil {
		t.Fatal("expected error for empty session, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "sources") {
		t.Errorf("error should mention sources, got: %v", err)
	}
	if !strings.Contains(errStr, "sinks") {
		t.Errorf("error should mention sinks, got: %v", err)
	}
}

func TestValidate_DuplicateSourceNames(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  sources:
    - name: mic
      type: silence
    - name: mic
      type: silence
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate source names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_WAVSinkRequiresPath(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  sources:
    - name: mic
      type: silence
  sinks:
    - type: wav
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for wav sink without path, got nil")
	}
	if !strings.Contains(err.Error(), "path") {
		t.Errorf("error should mention path, got: %v", err)
	}
}

func TestValidate_ToneFrequencyAgainstNyquist(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  format: {sample_rate: 16000, channels: 1, kind: float32}
  sources:
    - name: beep
      type: tone
      frequency: 9000
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for frequency above Nyquist, got nil")
	}
	if !strings.Contains(err.Error(), "frequency") {
		t.Errorf("error should mention frequency, got: %v", err)
	}
}

func TestValidate_SilenceThresholdMustBeNegative(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  sources:
    - name: mic
      type: silence
  silence:
    threshold_db: 5
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for positive silence threshold, got nil")
	}
	if !strings.Contains(err.Error(), "threshold_db") {
		t.Errorf("error should mention threshold_db, got: %v", err)
	}
}

func TestValidate_MetricsNeedListenAddr(t *testing.T) {
	t.Parallel()
	yaml := `
metrics:
  enabled: true
session:
  sources:
    - name: mic
      type: silence
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled metrics without listen_addr, got nil")
	}
	if !strings.Contains(err.Error(), "listen_addr") {
		t.Errorf("error should mention listen_addr, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
session:
  buffer_ms: 5000
  sources:
    - name: mic
      type: telepathy
  sinks:
    - type: "null"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "buffer_ms", "telepathy"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoad_FullExample(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: debug
metrics:
  enabled: true
  listen_addr: ":9464"
session:
  buffer_ms: 10
  format: {sample_rate: 48000, channels: 2, kind: float32}
  sources:
    - {name: mic, type: microphone, weight: 0.6}
    - {name: system, type: system, weight: 0.4}
  mixer: {mode: weighted, limiter: true}
  volume: {gain_db: -3, ramp_ms: 100}
  silence: {threshold_db: -40, min_silence_ms: 1000}
  normalizer: {target_db: -3, lookahead_ms: 20}
  resample: {rate: 16000}
  sinks:
    - {type: wav, path: session.wav}
    - {type: buffer, max_buffers: 512}
`
	path := filepath.Join(t.TempDir(), "tapedeck.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(cfg.Session.Sources); got != 2 {
		t.Errorf("sources = %d, want 2", got)
	}
	if cfg.Session.Resample == nil || cfg.Session.Resample.Rate != 16000 {
		t.Errorf("resample = %+v, want rate 16000", cfg.Session.Resample)
	}
	if cfg.Session.Sinks[1].MaxBuffers != 512 {
		t.Errorf("buffer sink max_buffers = %d, want 512", cfg.Session.Sinks[1].MaxBuffers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
