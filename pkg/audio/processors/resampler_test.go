package processors_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/tapedeck/pkg/audio"
	"github.com/MrWong99/tapedeck/pkg/audio/processors"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1, Kind: audio.KindFloat32}

func TestNewResamplerValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src, dst int
		opts     []processors.ResamplerOption
	}{
		{"zero source rate", 0, 48000, nil},
		{"negative target rate", 16000, -1, nil},
		{"source above limit", 400000, 48000, nil},
		{"target above limit", 16000, 400000, nil},
		{"zero chunk", 16000, 48000, []processors.ResamplerOption{processors.WithChunkFrames(0)}},
		{"chunk above limit", 16000, 48000, []processors.ResamplerOption{processors.WithChunkFrames(32768)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := processors.NewResampler(tt.src, tt.dst, tt.opts...); !errors.Is(err, audio.ErrInvalidConfig) {
				t.Fatalf("NewResampler() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestResamplerIdentityPassesThrough(t *testing.T) {
	t.Parallel()

	r, err := processors.NewResampler(48000, 48000)
	if err != nil {
		t.Fatalf("NewResampler() = %v", err)
	}

	in := constantBuffer(mono48k, 0.37, 480)
	out, err := r.Process(in)
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if out == nil {
		t.Fatal("identity ratio must not accumulate")
	}
	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("output length = %d, want unchanged %d", len(out.Samples), len(in.Samples))
	}
	for i := range in.Samples {
		if out.Samples[i] != in.Samples[i] {
			t.Fatalf("sample[%d] = %f, want exact input %f", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestResamplerRejectsWrongRate(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)
	if _, err := r.Process(constantBuffer(mono48k, 0.1, 480)); !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Process() with 48kHz into a 16kHz resampler error = %v, want ErrFormatMismatch", err)
	}
}

func TestResamplerRejectsFormatChange(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)
	if _, err := r.Process(constantBuffer(mono16k, 0.1, 160)); err != nil {
		t.Fatalf("Process() = %v", err)
	}

	stereo16k := mono16k
	stereo16k.Channels = 2
	if _, err := r.Process(constantBuffer(stereo16k, 0.1, 160)); !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Process() with changed channels error = %v, want ErrFormatMismatch", err)
	}
}

func TestResamplerAccumulatesBeforeEmitting(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)

	// 160-frame (10ms) buffers: nothing can come out before a full chunk
	// plus kernel history is banked.
	out, err := r.Process(constantBuffer(mono16k, 0.1, 160))
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if out != nil {
		t.Fatal("first 10ms buffer must be accumulated, not emitted")
	}
}

func TestResamplerUpsamplesOneSecond(t *testing.T) {
	t.Parallel()

	// 1 second of 16kHz into a 48kHz resampler: total output duration must
	// come out at 1 second within one 10ms buffer's tolerance.
	r, _ := processors.NewResampler(16000, 48000)

	var total int
	for range 100 { // 100 × 10ms buffers
		out, err := r.Process(constantBuffer(mono16k, 0.5, 160))
		if err != nil {
			t.Fatalf("Process() = %v", err)
		}
		if out != nil {
			if out.Format.SampleRate != 48000 {
				t.Fatalf("output rate = %d, want 48000", out.Format.SampleRate)
			}
			total += len(out.Samples)
		}
	}
	if tail := r.Flush(); tail != nil {
		total += len(tail.Samples)
	}

	if diff := total - 48000; diff > 480 || diff < -480 {
		t.Fatalf("total output samples = %d, want 48000 ± 480", total)
	}
}

func TestResamplerPreservesConstantLevel(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)

	var samples []float32
	for range 50 {
		out, err := r.Process(constantBuffer(mono16k, 0.5, 160))
		if err != nil {
			t.Fatalf("Process() = %v", err)
		}
		if out != nil {
			samples = append(samples, out.Samples...)
		}
	}
	if len(samples) == 0 {
		t.Fatal("no output after 500ms of input")
	}

	// Skip the leading transient where the kernel still sees zero history.
	for i := 200; i < len(samples); i++ {
		if math.Abs(float64(samples[i])-0.5) > 0.01 {
			t.Fatalf("sample[%d] = %f, want ~0.5 (band-limited interpolation of a constant)", i, samples[i])
		}
	}
}

func TestResamplerDownsampleStereo(t *testing.T) {
	t.Parallel()

	stereo16k := audio.Format{SampleRate: 48000, Channels: 2, Kind: audio.KindFloat32}
	r, _ := processors.NewResampler(48000, 16000)

	var total int
	for range 100 {
		out, err := r.Process(constantBuffer(stereo16k, 0.25, 480))
		if err != nil {
			t.Fatalf("Process() = %v", err)
		}
		if out != nil {
			if out.Format.Channels != 2 {
				t.Fatalf("output channels = %d, want 2 preserved", out.Format.Channels)
			}
			total += len(out.Samples)
		}
	}
	if tail := r.Flush(); tail != nil {
		total += len(tail.Samples)
	}

	// 1 second of stereo at 16kHz is 32000 interleaved samples.
	if diff := total - 32000; diff > 320 || diff < -320 {
		t.Fatalf("total output samples = %d, want 32000 ± 320", total)
	}
}

func TestResamplerResetDropsBankedInput(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)
	if _, err := r.Process(constantBuffer(mono16k, 0.5, 160)); err != nil {
		t.Fatalf("Process() = %v", err)
	}

	r.Reset()
	if tail := r.Flush(); tail != nil {
		t.Fatalf("Flush() after Reset released %d samples, want none", len(tail.Samples))
	}
}

func TestResamplerTracksProcessingTime(t *testing.T) {
	t.Parallel()

	r, _ := processors.NewResampler(16000, 48000)
	for range 20 {
		if _, err := r.Process(constantBuffer(mono16k, 0.5, 160)); err != nil {
			t.Fatalf("Process() = %v", err)
		}
	}
	if r.AverageProcessingTime() <= 0 {
		t.Error("AverageProcessingTime() = 0, want a smoothed positive duration")
	}
	if r.Stats().BuffersProcessed != 20 {
		t.Errorf("BuffersProcessed = %d, want 20", r.Stats().BuffersProcessed)
	}
}
