package session

import (
	"fmt"
	"time"

	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/pkg/audio"
	"github.com/MrWong99/tapedeck/pkg/audio/graph"
	"github.com/MrWong99/tapedeck/pkg/audio/processors"
	"github.com/MrWong99/tapedeck/pkg/audio/sinks"
	"github.com/MrWong99/tapedeck/pkg/audio/sources"
)

// SourceFactory builds an [audio.Source] for one configured input. The
// session manager injects a factory so that tests can run pipelines without
// capture hardware.
type SourceFactory func(cfg config.SourceConfig, format audio.Format, interval time.Duration) (audio.Source, error)

// DefaultSourceFactory handles the hardware-free source types. Microphone
// and system capture need a portaudio-backed factory; see internal/capture.
func DefaultSourceFactory(cfg config.SourceConfig, format audio.Format, interval time.Duration) (audio.Source, error) {
	switch cfg.Type {
	case config.SourceSilence:
		return sources.NewSilenceSource(cfg.Name, format, interval)
	case config.SourceTone:
		return sources.NewToneSource(cfg.Name, format, interval, cfg.Frequency, cfg.Amplitude)
	default:
		return nil, fmt.Errorf("source %q: type %q needs a capture backend: %w",
			cfg.Name, cfg.Type, audio.ErrSourceUnavailable)
	}
}

// Pipeline is a fully assembled capture graph plus handles to the stages the
// session needs to query at runtime.
type Pipeline struct {
	Graph *graph.Graph

	// Detector is the silence detection stage, nil when not configured.
	Detector *processors.SilenceDetector

	// OutputFormat is the format delivered to the sinks, after the optional
	// resampler.
	OutputFormat audio.Format
}

// Build assembles the processing graph for one session config. The stage
// order is fixed: sources, mixer (two or more sources), volume, silence
// detection, normalization, resampling, sinks. Configuration errors surface
// here, before any source is started.
func Build(cfg config.SessionConfig, factory SourceFactory) (*Pipeline, error) {
	if factory == nil {
		factory = DefaultSourceFactory
	}

	format := cfg.Format.ToFormat()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("session format: %w", err)
	}
	interval := cfg.BufferDuration()

	g := graph.New()
	p := &Pipeline{Graph: g, OutputFormat: format}

	srcIDs := make([]graph.NodeID, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := factory(sc, format, interval)
		if err != nil {
			return nil, err
		}
		id, err := g.AddSource(src)
		if err != nil {
			return nil, err
		}
		srcIDs = append(srcIDs, id)
	}
	if len(srcIDs) == 0 {
		return nil, fmt.Errorf("%w: session has no sources", audio.ErrInvalidConfig)
	}

	// Single feed line through the graph; tail is the current producer.
	var tail graph.NodeID

	if len(srcIDs) == 1 {
		tail = srcIDs[0]
	} else {
		mixer, err := buildMixer(cfg)
		if err != nil {
			return nil, err
		}
		mixID := g.AddProcessor(mixer)
		for _, id := range srcIDs {
			if err := g.Connect(id, mixID); err != nil {
				return nil, err
			}
		}
		tail = mixID
	}

	connect := func(proc audio.Processor) error {
		id := g.AddProcessor(proc)
		if err := g.Connect(tail, id); err != nil {
			return err
		}
		tail = id
		return nil
	}

	if vc := cfg.Volume; vc != nil {
		vol, err := buildVolume(*vc, format.SampleRate)
		if err != nil {
			return nil, err
		}
		if err := connect(vol); err != nil {
			return nil, err
		}
	}

	if sc := cfg.Silence; sc != nil {
		det, err := processors.NewSilenceDetector(
			processors.WithThresholdDB(sc.ThresholdDB),
			processors.WithMinSilence(time.Duration(sc.MinSilenceMS)*time.Millisecond),
		)
		if err != nil {
			return nil, err
		}
		if err := connect(det); err != nil {
			return nil, err
		}
		p.Detector = det
	}

	if nc := cfg.Normalizer; nc != nil {
		norm, err := processors.NewNormalizer(nc.TargetDB,
			processors.WithLookAhead(time.Duration(nc.LookAheadMS)*time.Millisecond))
		if err != nil {
			return nil, err
		}
		if err := connect(norm); err != nil {
			return nil, err
		}
	}

	if rc := cfg.Resample; rc != nil && rc.Rate != format.SampleRate {
		opts := []processors.ResamplerOption{}
		if rc.ChunkFrames > 0 {
			opts = append(opts, processors.WithChunkFrames(rc.ChunkFrames))
		}
		rs, err := processors.NewResampler(format.SampleRate, rc.Rate, opts...)
		if err != nil {
			return nil, err
		}
		if err := connect(rs); err != nil {
			return nil, err
		}
		p.OutputFormat.SampleRate = rc.Rate
	}

	for _, snk := range cfg.Sinks {
		sink, err := buildSink(snk, p.OutputFormat)
		if err != nil {
			return nil, err
		}
		id := g.AddSink(sink)
		if err := g.Connect(tail, id); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func buildMixer(cfg config.SessionConfig) (*processors.Mixer, error) {
	var mode processors.MixMode
	switch cfg.Mixer.Mode {
	case config.MixSum:
		mode = processors.MixSum
	case config.MixWeighted:
		mode = processors.MixWeighted
	default:
		mode = processors.MixAverage
	}

	var opts []processors.MixerOption
	if mode == processors.MixWeighted {
		weights := make([]float64, len(cfg.Sources))
		for i, sc := range cfg.Sources {
			weights[i] = sc.Weight
		}
		opts = append(opts, processors.WithWeights(weights))
	}
	if cfg.Mixer.Limiter != nil && !*cfg.Mixer.Limiter {
		opts = append(opts, processors.WithoutLimiter())
	}
	return processors.NewMixer(len(cfg.Sources), mode, opts...)
}

func buildVolume(vc config.VolumeConfig, sampleRate int) (*processors.VolumeControl, error) {
	if vc.RampMS <= 0 {
		return processors.NewVolumeControlDB(vc.GainDB)
	}
	// Ramp from unity to the target at session start.
	vol, err := processors.NewVolumeControl(1.0)
	if err != nil {
		return nil, err
	}
	ramp := time.Duration(vc.RampMS) * time.Millisecond
	if err := vol.RampGainDB(vc.GainDB, ramp, sampleRate); err != nil {
		return nil, err
	}
	return vol, nil
}

func buildSink(sc config.SinkConfig, format audio.Format) (audio.Sink, error) {
	switch sc.Type {
	case config.SinkWAV:
		return sinks.NewWAVSink(sc.Name, sc.Path, format)
	case config.SinkBuffer:
		return sinks.NewBufferSink(sc.Name, sc.MaxBuffers), nil
	case config.SinkNull:
		return sinks.NewNullSink(sc.Name), nil
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", audio.ErrInvalidConfig, sc.Type)
	}
}
