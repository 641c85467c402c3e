package sources

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Source = (*ToneSource)(nil)

// ToneSource produces a continuous sine tone at real-time pace, phase
// continuous across buffers. Used for level calibration and pipeline tests
// where silence would make assertions vacuous.
type ToneSource struct {
	name      string
	format    audio.Format
	interval  time.Duration
	frames    int
	frequency float64
	amplitude float64

	active   bool
	lastRead time.Time
	phase    float64
	seq      uint64
	stats    audio.SourceStats
}

// NewToneSource creates a tone source. The frequency must be positive and
// below the Nyquist limit of the format; amplitude must lie in [0, 1].
func NewToneSource(name string, format audio.Format, interval time.Duration, frequency, amplitude float64) (*ToneSource, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: buffer interval %v must be positive", audio.ErrInvalidConfig, interval)
	}
	if frequency <= 0 || frequency >= float64(format.SampleRate)/2 {
		return nil, fmt.Errorf("%w: tone frequency %.1fHz out of range (0, %d)", audio.ErrInvalidConfig, frequency, format.SampleRate/2)
	}
	if amplitude < 0 || amplitude > 1 {
		return nil, fmt.Errorf("%w: tone amplitude %.3f out of range [0, 1]", audio.ErrInvalidConfig, amplitude)
	}
	frames := int(interval.Seconds() * float64(format.SampleRate))
	if frames < 1 {
		return nil, fmt.Errorf("%w: buffer interval %v yields no frames at %dHz", audio.ErrInvalidConfig, interval, format.SampleRate)
	}
	return &ToneSource{
		name:      name,
		format:    format,
		interval:  interval,
		frames:    frames,
		frequency: frequency,
		amplitude: amplitude,
	}, nil
}

// Start implements [audio.Source].
func (t *ToneSource) Start() error {
	t.active = true
	t.lastRead = time.Time{}
	t.phase = 0
	return nil
}

// Read returns the next tone buffer once per interval of elapsed wall-clock
// time, or (nil, nil) when no interval has passed yet.
func (t *ToneSource) Read() (*audio.Buffer, error) {
	if !t.active {
		return nil, audio.ErrClosed
	}
	now := time.Now()
	if !t.lastRead.IsZero() && now.Sub(t.lastRead) < t.interval {
		return nil, nil
	}
	if t.lastRead.IsZero() {
		t.lastRead = now
	} else {
		t.lastRead = t.lastRead.Add(t.interval)
	}

	step := 2 * math.Pi * t.frequency / float64(t.format.SampleRate)
	samples := make([]float32, t.frames*t.format.Channels)
	for f := range t.frames {
		v := float32(t.amplitude * math.Sin(t.phase))
		for c := range t.format.Channels {
			samples[f*t.format.Channels+c] = v
		}
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}

	t.seq++
	buf := audio.NewBuffer(samples, t.format, t.seq)
	t.stats.BuffersProduced++
	t.stats.SamplesProduced += uint64(len(samples))
	return buf, nil
}

// Stop implements [audio.Source].
func (t *ToneSource) Stop() error {
	t.active = false
	return nil
}

// Format implements [audio.Source].
func (t *ToneSource) Format() audio.Format { return t.format }

// Active implements [audio.Source].
func (t *ToneSource) Active() bool { return t.active }

// Name implements [audio.Source].
func (t *ToneSource) Name() string { return t.name }

// Stats implements [audio.Source].
func (t *ToneSource) Stats() audio.SourceStats { return t.stats }
