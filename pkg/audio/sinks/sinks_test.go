package sinks_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/tapedeck/pkg/audio"
	"github.com/MrWong99/tapedeck/pkg/audio/mock"
	"github.com/MrWong99/tapedeck/pkg/audio/sinks"
)

var mono48k = audio.Format{SampleRate: 48000, Channels: 1, Kind: audio.KindFloat32}

func sampleBuffer(format audio.Format, samples ...float32) *audio.Buffer {
	return audio.NewBuffer(samples, format, 1)
}

func TestNullSinkCounts(t *testing.T) {
	t.Parallel()

	s := sinks.NewNullSink("null")
	for range 3 {
		if err := s.Write(sampleBuffer(mono48k, 0.1, 0.2)); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}

	stats := s.Stats()
	if stats.BuffersWritten != 3 || stats.SamplesWritten != 6 {
		t.Errorf("stats = %+v, want 3 buffers / 6 samples", stats)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := s.Write(sampleBuffer(mono48k, 0.1)); !errors.Is(err, audio.ErrClosed) {
		t.Fatalf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestBufferSinkPinsFormatOnFirstWrite(t *testing.T) {
	t.Parallel()

	s := sinks.NewBufferSink("preview", 8)
	if err := s.Write(sampleBuffer(mono48k, 0.1)); err != nil {
		t.Fatalf("Write() = %v", err)
	}

	other := mono48k
	other.Channels = 2
	err := s.Write(sampleBuffer(other, 0.1, 0.1))
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Write() with changed format error = %v, want ErrFormatMismatch", err)
	}
}

func TestBufferSinkDropsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	s := sinks.NewBufferSink("preview", 2)
	for i := range 5 {
		if err := s.Write(sampleBuffer(mono48k, float32(i))); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want capped at 2", s.Len())
	}
	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}

	held := s.Drain()
	if held[0].Samples[0] != 3 || held[1].Samples[0] != 4 {
		t.Errorf("Drain() kept %f, %f; want the newest 3, 4", held[0].Samples[0], held[1].Samples[0])
	}
	if s.Len() != 0 {
		t.Error("Drain() must clear the sink")
	}
}

func TestBufferSinkSamples(t *testing.T) {
	t.Parallel()

	s := sinks.NewBufferSink("preview", 0)
	_ = s.Write(sampleBuffer(mono48k, 0.1, 0.2))
	_ = s.Write(sampleBuffer(mono48k, 0.3))

	got := s.Samples()
	want := []float32{0.1, 0.2, 0.3}
	if len(got) != len(want) {
		t.Fatalf("Samples() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Samples()[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	if s.Len() != 2 {
		t.Error("Samples() must not drain the sink")
	}
}

func TestMultiSinkFanOutIsIndependent(t *testing.T) {
	t.Parallel()

	a := &mock.Sink{NameResult: "a"}
	b := &mock.Sink{NameResult: "b"}
	m, err := sinks.NewMultiSink("tee", a, b)
	if err != nil {
		t.Fatalf("NewMultiSink() = %v", err)
	}

	src := sampleBuffer(mono48k, 0.5)
	if err := m.Write(src); err != nil {
		t.Fatalf("Write() = %v", err)
	}

	// Each child got its own copy: mutating one must not leak.
	a.Written[0].Samples[0] = 0.9
	if b.Written[0].Samples[0] != 0.5 {
		t.Error("children share sample storage; want independent copies")
	}
	if src.Samples[0] != 0.5 {
		t.Error("source buffer was mutated through a child")
	}
}

func TestMultiSinkPartialFailure(t *testing.T) {
	t.Parallel()

	bad := &mock.Sink{NameResult: "bad", WriteError: errors.New("disk full")}
	good := &mock.Sink{NameResult: "good"}
	m, _ := sinks.NewMultiSink("tee", bad, good)

	err := m.Write(sampleBuffer(mono48k, 0.5))
	if err == nil {
		t.Fatal("Write() = nil, want the failing child's error")
	}
	if len(good.Written) != 1 {
		t.Error("healthy child must still receive the buffer")
	}
	if m.Stats().Errors != 0 {
		t.Error("partial failure must not count as a full write error")
	}
}

func TestMultiSinkRequiresChildren(t *testing.T) {
	t.Parallel()

	if _, err := sinks.NewMultiSink("tee"); !errors.Is(err, audio.ErrInvalidConfig) {
		t.Fatalf("NewMultiSink() error = %v, want ErrInvalidConfig", err)
	}
}

func TestWAVSinkWritesFloat32File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := sinks.NewWAVSink("wav", path, mono48k)
	if err != nil {
		t.Fatalf("NewWAVSink() = %v", err)
	}

	if err := s.Write(sampleBuffer(mono48k, 0.25, -0.25, 0.5, -0.5)); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if len(data) != 44+4*4 {
		t.Fatalf("file size = %d, want 44-byte header + 16 data bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if audioFormat := binary.LittleEndian.Uint16(data[20:22]); audioFormat != 3 {
		t.Errorf("audio format tag = %d, want 3 (IEEE float)", audioFormat)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 48000 {
		t.Errorf("sample rate = %d, want 48000", rate)
	}
	if dataSize := binary.LittleEndian.Uint32(data[40:44]); dataSize != 16 {
		t.Errorf("data chunk size = %d, want 16", dataSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[44:48])); got != 0.25 {
		t.Errorf("first sample = %f, want 0.25", got)
	}
}

func TestWAVSinkWritesInt16WithClamping(t *testing.T) {
	t.Parallel()

	format := audio.Format{SampleRate: 16000, Channels: 1, Kind: audio.KindInt16}
	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := sinks.NewWAVSink("wav", path, format)
	if err != nil {
		t.Fatalf("NewWAVSink() = %v", err)
	}

	// 1.5 is over-range and must clamp to full scale, not wrap negative.
	if err := s.Write(sampleBuffer(format, 0.5, 1.5, -2.0)); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if audioFormat := binary.LittleEndian.Uint16(data[20:22]); audioFormat != 1 {
		t.Errorf("audio format tag = %d, want 1 (PCM)", audioFormat)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}

	s0 := int16(binary.LittleEndian.Uint16(data[44:46]))
	s1 := int16(binary.LittleEndian.Uint16(data[46:48]))
	s2 := int16(binary.LittleEndian.Uint16(data[48:50]))
	if s0 != 16383 {
		t.Errorf("sample 0 = %d, want 16383 (0.5 full scale)", s0)
	}
	if s1 != 32767 {
		t.Errorf("sample 1 = %d, want clamped 32767", s1)
	}
	if s2 != -32767 {
		t.Errorf("sample 2 = %d, want clamped -32767", s2)
	}
}

func TestWAVSinkRejectsFormatMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := sinks.NewWAVSink("wav", path, mono48k)
	if err != nil {
		t.Fatalf("NewWAVSink() = %v", err)
	}
	defer s.Close()

	other := mono48k
	other.SampleRate = 16000
	if err := s.Write(sampleBuffer(other, 0.1)); !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Write() with wrong rate error = %v, want ErrFormatMismatch", err)
	}
}

func TestWAVSinkCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := sinks.NewWAVSink("wav", path, mono48k)
	if err != nil {
		t.Fatalf("NewWAVSink() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() = %v, want nil", err)
	}
	if err := s.Write(sampleBuffer(mono48k, 0.1)); !errors.Is(err, audio.ErrClosed) {
		t.Fatalf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestWAVSinkRejectsInvalidFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	bad := audio.Format{SampleRate: 0, Channels: 1, Kind: audio.KindFloat32}
	if _, err := sinks.NewWAVSink("wav", path, bad); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Fatalf("NewWAVSink() error = %v, want ErrInvalidFormat", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no file should remain after failed construction")
	}
}
