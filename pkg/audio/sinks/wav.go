package sinks

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Sink = (*WAVSink)(nil)

// wavHeader is the canonical 44-byte RIFF/WAVE header. ChunkSize and
// Subchunk2Size are written as zero while streaming and patched on Close,
// once the total data length is known.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM and IEEE float
	AudioFormat   uint16  // 1 = PCM, 3 = IEEE float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // bytes of sample data
}

const wavHeaderSize = 44

// WAVSink streams buffers into a RIFF/WAVE file, encoding the float32
// sample plane back to the declared [audio.SampleKind] (PCM 16/24/32 or
// IEEE float32). Every write must match the configured format exactly.
type WAVSink struct {
	name   string
	path   string
	format audio.Format

	file      *os.File
	w         *bufio.Writer
	dataBytes uint32
	closed    bool
	stats     audio.SinkStats
}

// NewWAVSink creates the file at path and writes a provisional header. The
// format is fixed for the sink's lifetime; construction fails on an invalid
// format or an unwritable path.
func NewWAVSink(name, path string, format audio.Format) (*WAVSink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav sink %q: create %q: %w", name, path, err)
	}

	s := &WAVSink{
		name:   name,
		path:   path,
		format: format,
		file:   f,
		w:      bufio.NewWriter(f),
	}
	if err := s.writeHeader(s.w); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("wav sink %q: write header: %w", name, err)
	}
	return s, nil
}

// Path returns the output file path.
func (s *WAVSink) Path() string { return s.path }

// Format returns the configured sample format.
func (s *WAVSink) Format() audio.Format { return s.format }

// Write encodes one buffer. Float samples are clamped to [-1.0, 1.0] before
// integer conversion so an over-range sample can never wrap.
func (s *WAVSink) Write(b *audio.Buffer) error {
	if s.closed {
		return fmt.Errorf("wav sink %q: %w", s.name, audio.ErrClosed)
	}
	if !s.format.Compatible(b.Format) {
		s.stats.Errors++
		return audio.MismatchError(s.format, b.Format)
	}

	n, err := encodeSamples(s.w, b.Samples, s.format.Kind)
	if err != nil {
		s.stats.Errors++
		return fmt.Errorf("wav sink %q: encode: %w", s.name, err)
	}
	s.dataBytes += uint32(n)
	s.stats.BuffersWritten++
	s.stats.SamplesWritten += uint64(len(b.Samples))
	return nil
}

// Flush pushes buffered bytes to the file without finalising the header.
func (s *WAVSink) Flush() error {
	if s.closed {
		return fmt.Errorf("wav sink %q: %w", s.name, audio.ErrClosed)
	}
	if err := s.w.Flush(); err != nil {
		s.stats.Errors++
		return fmt.Errorf("wav sink %q: flush: %w", s.name, err)
	}
	return nil
}

// Close flushes remaining data, patches the header sizes, and closes the
// file. Close is idempotent.
func (s *WAVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("wav sink %q: final flush: %w", s.name, err)
	}

	// Patch the two size fields now that the data length is known.
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		s.file.Close()
		return fmt.Errorf("wav sink %q: seek header: %w", s.name, err)
	}
	if err := s.writeHeader(s.file); err != nil {
		s.file.Close()
		return fmt.Errorf("wav sink %q: patch header: %w", s.name, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("wav sink %q: close: %w", s.name, err)
	}
	return nil
}

// Name implements [audio.Sink].
func (s *WAVSink) Name() string { return s.name }

// Stats implements [audio.Sink].
func (s *WAVSink) Stats() audio.SinkStats { return s.stats }

// writeHeader writes the 44-byte header with the current data size.
func (s *WAVSink) writeHeader(w io.Writer) error {
	bits := uint16(s.format.Kind.BitDepth())
	var audioFormat uint16 = 1 // PCM
	if s.format.Kind == audio.KindFloat32 {
		audioFormat = 3 // IEEE float
	}
	channels := uint16(s.format.Channels)
	rate := uint32(s.format.SampleRate)

	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     wavHeaderSize - 8 + s.dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   audioFormat,
		NumChannels:   channels,
		SampleRate:    rate,
		ByteRate:      rate * uint32(channels) * uint32(bits) / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: s.dataBytes,
	}
	return binary.Write(w, binary.LittleEndian, h)
}

// encodeSamples converts float32 samples to the target representation and
// writes them little-endian. Returns the number of bytes written.
func encodeSamples(w io.Writer, samples []float32, kind audio.SampleKind) (int, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(samples)*4))

	switch kind {
	case audio.KindFloat32:
		if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
			return 0, err
		}
	case audio.KindInt16:
		for _, s := range samples {
			v := int16(clamp(s) * 32767)
			buf.WriteByte(byte(v))
			buf.WriteByte(byte(v >> 8))
		}
	case audio.KindInt24:
		for _, s := range samples {
			v := int32(clamp(s) * 8388607)
			buf.WriteByte(byte(v))
			buf.WriteByte(byte(v >> 8))
			buf.WriteByte(byte(v >> 16))
		}
	case audio.KindInt32:
		for _, s := range samples {
			v := int32(clamp(s) * 2147483647)
			if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
				return 0, err
			}
		}
	default:
		return 0, fmt.Errorf("unsupported sample kind %q", kind)
	}

	n, err := w.Write(buf.Bytes())
	return n, err
}

// clamp bounds a sample to [-1.0, 1.0].
func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
