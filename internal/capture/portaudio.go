// Package capture provides portaudio-backed [audio.Source] implementations
// for microphone and system loopback input.
//
// PortAudio's global Initialize/Terminate pair is reference-counted here so
// that several concurrent sources (or sessions) share one library lifetime.
// Each source runs a reader goroutine that moves hardware chunks into a
// buffered channel; Read drains one chunk without blocking, and chunks that
// arrive while the channel is full are dropped with a counter.
package capture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/internal/session"
	"github.com/MrWong99/tapedeck/pkg/audio"
)

// chanDepth is how many hardware chunks may queue between the reader
// goroutine and Read before overflow dropping starts.
const chanDepth = 16

// systemKeywords identify loopback/monitor devices when no explicit device
// name is configured for a system source.
var systemKeywords = []string{"monitor", "loopback", "blackhole", "vb-cable", "soundflower"}

var (
	initMu    sync.Mutex
	initCount int
)

// initialize bumps the PortAudio refcount, initialising the library on the
// first call.
func initialize() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("capture: initialize portaudio: %w", err)
		}
	}
	initCount++
	return nil
}

// terminate drops the refcount, shutting the library down on the last call.
func terminate() {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		return
	}
	initCount--
	if initCount == 0 {
		_ = portaudio.Terminate()
	}
}

// Input captures one PortAudio input device as an [audio.Source].
type Input struct {
	name     string
	device   string
	system   bool
	format   audio.Format
	frames   int
	interval time.Duration

	mu      sync.Mutex
	stream  *portaudio.Stream
	scratch []float32
	ch      chan *audio.Buffer
	done    chan struct{}
	active  bool
	seq     uint64
	dropped uint64
	stats   audio.SourceStats
}

// Compile-time interface assertion.
var _ audio.Source = (*Input)(nil)

// NewInput creates a capture source for the named device. An empty device
// selects the default input device for microphones; system sources scan for
// a loopback/monitor device instead. Capture always runs in float32, so any
// other sample kind is rejected here.
func NewInput(name, device string, format audio.Format, interval time.Duration, system bool) (*Input, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("capture source %q: %w", name, err)
	}
	if format.Kind != audio.KindFloat32 {
		return nil, fmt.Errorf("capture source %q: hardware capture delivers float32, not %s: %w",
			name, format.Kind, audio.ErrInvalidFormat)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("capture source %q: interval %v must be positive: %w",
			name, interval, audio.ErrInvalidConfig)
	}
	frames := int(float64(format.SampleRate) * interval.Seconds())
	if frames < 1 {
		return nil, fmt.Errorf("capture source %q: interval %v yields no frames at %d Hz: %w",
			name, interval, format.SampleRate, audio.ErrInvalidConfig)
	}
	return &Input{
		name:     name,
		device:   device,
		system:   system,
		format:   format,
		frames:   frames,
		interval: interval,
	}, nil
}

// Start opens the device and begins moving chunks into the read queue.
func (in *Input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active {
		return nil
	}

	if err := initialize(); err != nil {
		return err
	}

	dev, err := in.lookupDevice()
	if err != nil {
		terminate()
		return err
	}
	if dev.MaxInputChannels < in.format.Channels {
		terminate()
		return fmt.Errorf("capture source %q: device %q has %d input channel(s), need %d: %w",
			in.name, dev.Name, dev.MaxInputChannels, in.format.Channels, audio.ErrSourceUnavailable)
	}

	in.scratch = make([]float32, in.frames*in.format.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: in.format.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(in.format.SampleRate),
		FramesPerBuffer: in.frames,
	}
	stream, err := portaudio.OpenStream(params, in.scratch)
	if err != nil {
		terminate()
		return fmt.Errorf("capture source %q: open device %q: %w", in.name, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminate()
		return fmt.Errorf("capture source %q: start device %q: %w", in.name, dev.Name, err)
	}

	in.stream = stream
	in.ch = make(chan *audio.Buffer, chanDepth)
	in.done = make(chan struct{})
	in.active = true

	go in.reader()
	return nil
}

// reader moves hardware chunks into the channel until the stream dies or
// Stop is called.
func (in *Input) reader() {
	for {
		select {
		case <-in.done:
			return
		default:
		}

		if err := in.stream.Read(); err != nil {
			select {
			case <-in.done:
			default:
				in.mu.Lock()
				in.stats.Errors++
				in.mu.Unlock()
			}
			return
		}

		in.mu.Lock()
		samples := append([]float32(nil), in.scratch...)
		in.seq++
		buf := audio.NewBuffer(samples, in.format, in.seq)
		select {
		case in.ch <- buf:
			in.stats.BuffersProduced++
			in.stats.SamplesProduced += uint64(len(samples))
		default:
			in.dropped++
		}
		in.mu.Unlock()
	}
}

// Read returns the next captured chunk, (nil, nil) when none has arrived
// yet, or [audio.ErrClosed] after Stop.
func (in *Input) Read() (*audio.Buffer, error) {
	in.mu.Lock()
	active, ch := in.active, in.ch
	in.mu.Unlock()
	if !active {
		return nil, fmt.Errorf("capture source %q: %w", in.name, audio.ErrClosed)
	}
	select {
	case buf := <-ch:
		return buf, nil
	default:
		return nil, nil
	}
}

// Stop ends capture and releases the device.
func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.active {
		return nil
	}
	in.active = false
	close(in.done)

	var err error
	if stopErr := in.stream.Stop(); stopErr != nil {
		err = fmt.Errorf("capture source %q: stop stream: %w", in.name, stopErr)
	}
	if closeErr := in.stream.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("capture source %q: close stream: %w", in.name, closeErr)
	}
	in.stream = nil
	terminate()
	return err
}

// Format returns the configured capture format.
func (in *Input) Format() audio.Format { return in.format }

// Active reports whether the device is currently capturing.
func (in *Input) Active() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

// Name returns the source's configured name.
func (in *Input) Name() string { return in.name }

// Stats returns a snapshot of the source's counters.
func (in *Input) Stats() audio.SourceStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

// Dropped returns how many chunks were lost to a full read queue.
func (in *Input) Dropped() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// lookupDevice resolves the configured device name. Missing devices fail
// loudly; a capture source is never silently substituted at construction.
func (in *Input) lookupDevice() (*portaudio.DeviceInfo, error) {
	if in.device == "" && !in.system {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture source %q: no default input device: %w",
				in.name, audio.ErrSourceUnavailable)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture source %q: list devices: %w", in.name, err)
	}

	if in.device != "" {
		for _, dev := range devices {
			if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(in.device)) {
				return dev, nil
			}
		}
		return nil, fmt.Errorf("capture source %q: no input device matching %q: %w",
			in.name, in.device, audio.ErrSourceUnavailable)
	}

	// System source without an explicit device: find a loopback/monitor.
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		lower := strings.ToLower(dev.Name)
		for _, kw := range systemKeywords {
			if strings.Contains(lower, kw) {
				return dev, nil
			}
		}
	}
	return nil, fmt.Errorf("capture source %q: no loopback/monitor input device found: %w",
		in.name, audio.ErrSourceUnavailable)
}

// Factory builds capture-backed sources for microphone and system inputs
// and defers everything else to [session.DefaultSourceFactory].
func Factory(cfg config.SourceConfig, format audio.Format, interval time.Duration) (audio.Source, error) {
	switch cfg.Type {
	case config.SourceMicrophone:
		return NewInput(cfg.Name, cfg.Device, format, interval, false)
	case config.SourceSystem:
		return NewInput(cfg.Name, cfg.Device, format, interval, true)
	default:
		return session.DefaultSourceFactory(cfg, format, interval)
	}
}
