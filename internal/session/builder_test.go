package session_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/internal/session"
	"github.com/MrWong99/tapedeck/pkg/audio"
	"github.com/MrWong99/tapedeck/pkg/audio/graph"
)

func baseConfig() config.SessionConfig {
	return config.SessionConfig{
		BufferMS: 10,
		Format:   config.FormatConfig{SampleRate: 48000, Channels: 1, Kind: "float32"},
		Sources: []config.SourceConfig{
			{Name: "quiet", Type: config.SourceSilence},
		},
		Sinks: []config.SinkConfig{
			{Name: "drop", Type: config.SinkNull},
		},
	}
}

func TestBuild_SingleSourceSkipsMixer(t *testing.T) {
	t.Parallel()

	pipe, err := session.Build(baseConfig(), nil)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	for _, st := range pipe.Graph.Stats() {
		if st.Name == "mixer" {
			t.Error("single-source pipeline must not contain a mixer")
		}
	}
	if pipe.OutputFormat.SampleRate != 48000 {
		t.Errorf("OutputFormat.SampleRate = %d, want 48000", pipe.OutputFormat.SampleRate)
	}
}

func TestBuild_TwoSourcesGetMixer(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Sources = append(cfg.Sources, config.SourceConfig{Name: "beep", Type: config.SourceTone, Frequency: 440, Amplitude: 0.5})
	cfg.Mixer = config.MixerConfig{Mode: config.MixWeighted}
	cfg.Sources[0].Weight = 0.6
	cfg.Sources[1].Weight = 0.4

	pipe, err := session.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	var found bool
	for _, st := range pipe.Graph.Stats() {
		if st.Name == "mixer" && st.Role == graph.RoleProcessor {
			found = true
		}
	}
	if !found {
		t.Error("two-source pipeline must contain a mixer")
	}
}

func TestBuild_FullChainRuns(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Volume = &config.VolumeConfig{GainDB: -6}
	cfg.Silence = &config.SilenceConfig{ThresholdDB: -40, MinSilenceMS: 50}
	cfg.Normalizer = &config.NormalizerConfig{TargetDB: -3, LookAheadMS: 20}

	pipe, err := session.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if pipe.Detector == nil {
		t.Fatal("silence stage configured but Detector is nil")
	}

	if err := pipe.Graph.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := pipe.Graph.Tick(); err != nil {
		t.Fatalf("Tick() = %v", err)
	}
	if warnings, err := pipe.Graph.Stop(); err != nil || len(warnings) != 0 {
		t.Fatalf("Stop() = %v, %v", warnings, err)
	}
}

func TestBuild_ResampleChangesOutputFormat(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Resample = &config.ResampleConfig{Rate: 16000}

	pipe, err := session.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if pipe.OutputFormat.SampleRate != 16000 {
		t.Errorf("OutputFormat.SampleRate = %d, want 16000", pipe.OutputFormat.SampleRate)
	}
}

func TestBuild_HardwareSourceNeedsCaptureFactory(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Sources[0].Type = config.SourceMicrophone

	_, err := session.Build(cfg, nil)
	if !errors.Is(err, audio.ErrSourceUnavailable) {
		t.Fatalf("Build() = %v, want ErrSourceUnavailable", err)
	}
}

func TestBuild_RejectsBadNormalizerTarget(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Normalizer = &config.NormalizerConfig{TargetDB: 3, LookAheadMS: 20}

	if _, err := session.Build(cfg, nil); err == nil {
		t.Fatal("Build() accepted a positive normalizer target")
	}
}

func TestBuild_RejectsBadToneFrequency(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Sources[0] = config.SourceConfig{Name: "beep", Type: config.SourceTone, Frequency: 90000, Amplitude: 0.5}

	if _, err := session.Build(cfg, nil); err == nil {
		t.Fatal("Build() accepted a tone above Nyquist")
	}
}
