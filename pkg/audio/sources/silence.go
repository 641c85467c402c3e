// Package sources contains synthetic [audio.Source] implementations used in
// tests, calibration, and as placeholders for capture inputs. All of them
// are time-aware: a Read never yields more audio than elapsed wall-clock
// time justifies, which makes them behave like real capture devices under
// the graph's pacing.
package sources

import (
	"fmt"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Source = (*SilenceSource)(nil)

// SilenceSource produces all-zero buffers at real-time pace. The first Read
// after Start yields immediately; each following Read yields only once a
// full buffer interval of wall-clock time has passed.
type SilenceSource struct {
	name     string
	format   audio.Format
	interval time.Duration
	frames   int

	active   bool
	lastRead time.Time
	seq      uint64
	stats    audio.SourceStats
}

// NewSilenceSource creates a silence source emitting buffers of the given
// interval (e.g. 10ms) in the given format.
func NewSilenceSource(name string, format audio.Format, interval time.Duration) (*SilenceSource, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: buffer interval %v must be positive", audio.ErrInvalidConfig, interval)
	}
	frames := int(interval.Seconds() * float64(format.SampleRate))
	if frames < 1 {
		return nil, fmt.Errorf("%w: buffer interval %v yields no frames at %dHz", audio.ErrInvalidConfig, interval, format.SampleRate)
	}
	return &SilenceSource{
		name:     name,
		format:   format,
		interval: interval,
		frames:   frames,
	}, nil
}

// Start implements [audio.Source].
func (s *SilenceSource) Start() error {
	s.active = true
	s.lastRead = time.Time{}
	return nil
}

// Read returns a zero buffer once per interval of elapsed wall-clock time,
// or (nil, nil) when no interval has passed yet.
func (s *SilenceSource) Read() (*audio.Buffer, error) {
	if !s.active {
		return nil, audio.ErrClosed
	}
	now := time.Now()
	if !s.lastRead.IsZero() && now.Sub(s.lastRead) < s.interval {
		return nil, nil
	}
	if s.lastRead.IsZero() {
		s.lastRead = now
	} else {
		s.lastRead = s.lastRead.Add(s.interval)
	}

	s.seq++
	buf := audio.NewSilentBuffer(s.format, s.frames, s.seq)
	s.stats.BuffersProduced++
	s.stats.SamplesProduced += uint64(len(buf.Samples))
	return buf, nil
}

// Stop implements [audio.Source].
func (s *SilenceSource) Stop() error {
	s.active = false
	return nil
}

// Format implements [audio.Source].
func (s *SilenceSource) Format() audio.Format { return s.format }

// Active implements [audio.Source].
func (s *SilenceSource) Active() bool { return s.active }

// Name implements [audio.Source].
func (s *SilenceSource) Name() string { return s.name }

// Stats implements [audio.Source].
func (s *SilenceSource) Stats() audio.SourceStats { return s.stats }
