package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// WAV header constants.
const (
	// HeaderSize is the size of a canonical PCM WAV header in bytes.
	HeaderSize = 44

	formatPCM = 1
)

// ErrNotWAV is returned when audio bytes do not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio is not a valid WAV file")

// Format describes interleaved signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is the format produced by the offline synthesizer and
// expected by the audio device.
func DefaultFormat() Format {
	return Format{
		SampleRate: 44100,
		Channels:   1,
		BitDepth:   16,
	}
}

// FrameSize returns the number of bytes per sample frame.
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// DurationOf returns how long n bytes of PCM in this format play.
func (f Format) DurationOf(n int) time.Duration {
	if f.SampleRate <= 0 || f.FrameSize() <= 0 {
		return 0
	}
	frames := n / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// BytesFor returns the byte length of d worth of PCM, aligned to a frame.
func (f Format) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return frames * f.FrameSize()
}

// PCM is decoded audio ready for a device.
type PCM struct {
	Format   Format
	Data     []byte
	Duration time.Duration
}

// DecodeWAV decodes a WAV payload into 16-bit PCM. Samples with 8, 24 or 32
// bits of depth are rescaled to 16 bits.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < HeaderSize {
		return nil, ErrNotWAV
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	format := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d, channels %d", ErrNotWAV, format.SampleRate, format.Channels)
	}

	out := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(to16(v, int(dec.BitDepth))))
	}

	return &PCM{
		Format:   format,
		Data:     out,
		Duration: format.DurationOf(len(out)),
	}, nil
}

func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// EncodeWAV wraps raw PCM in a canonical 44 byte RIFF header.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.FrameSize()

	header := make([]byte, HeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.FrameSize()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(f.BitDepth))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}

// Silence returns a WAV file holding d of silence.
func Silence(d time.Duration, f Format) []byte {
	return EncodeWAV(make([]byte, f.BytesFor(d)), f)
}
