package config_test

import (
	"testing"

	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/pkg/audio"
)

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "verbose", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestSourceTypeIsValid(t *testing.T) {
	t.Parallel()
	valid := []config.SourceType{
		config.SourceMicrophone, config.SourceSystem, config.SourceTone, config.SourceSilence,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if config.SourceType("file").IsValid() {
		t.Error("\"file\" should be invalid")
	}
}

func TestSinkTypeIsValid(t *testing.T) {
	t.Parallel()
	valid := []config.SinkType{config.SinkWAV, config.SinkBuffer, config.SinkNull}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if config.SinkType("tape").IsValid() {
		t.Error("\"tape\" should be invalid")
	}
}

func TestFormatConfigToFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind string
		want audio.SampleKind
	}{
		{"float32", audio.KindFloat32},
		{"int16", audio.KindInt16},
		{"int24", audio.KindInt24},
		{"int32", audio.KindInt32},
	}
	for _, tt := range tests {
		fc := config.FormatConfig{SampleRate: 44100, Channels: 2, Kind: tt.kind}
		got := fc.ToFormat()
		if got.Kind != tt.want {
			t.Errorf("ToFormat(%q).Kind = %v, want %v", tt.kind, got.Kind, tt.want)
		}
		if got.SampleRate != 44100 || got.Channels != 2 {
			t.Errorf("ToFormat(%q) = %+v, lost rate or channels", tt.kind, got)
		}
	}
}

func TestSessionBufferDuration(t *testing.T) {
	t.Parallel()
	s := config.SessionConfig{BufferMS: 20}
	if got := s.BufferDuration().Milliseconds(); got != 20 {
		t.Errorf("BufferDuration() = %dms, want 20ms", got)
	}
}
