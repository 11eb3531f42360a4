package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/kanada4310/tts-app/internal/segment"
)

// rateReader streams 16-bit PCM at a variable playback rate. It keeps the
// source slice alive while the device reads from it. Speed changes apply
// to the next Read call.
type rateReader struct {
	mu      sync.Mutex
	data    []byte
	format  segment.Format
	frames  int
	pos     float64 // source frame position
	speed   float64
	drained bool
}

func newRateReader(data []byte, format segment.Format, speed float64) *rateReader {
	return &rateReader{
		data:   data,
		format: format,
		frames: len(data) / format.FrameSize(),
		speed:  ClampSpeed(speed),
	}
}

func (r *rateReader) sample(frame, ch int) int16 {
	off := frame*r.format.FrameSize() + ch*2
	return int16(binary.LittleEndian.Uint16(r.data[off:]))
}

// Read fills p with interpolated frames. Between two source frames the
// sample is linearly interpolated.
func (r *rateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameSize := r.format.FrameSize()
	n := 0
	for n+frameSize <= len(p) {
		i := int(r.pos)
		if i >= r.frames {
			break
		}
		frac := r.pos - float64(i)
		for ch := 0; ch < r.format.Channels; ch++ {
			s1 := r.sample(i, ch)
			s2 := s1
			if i+1 < r.frames {
				s2 = r.sample(i+1, ch)
			}
			v := float64(s1)*(1-frac) + float64(s2)*frac
			binary.LittleEndian.PutUint16(p[n+ch*2:], uint16(int16(math.Round(v))))
		}
		n += frameSize
		r.pos += r.speed
	}

	if n == 0 && int(r.pos) >= r.frames {
		r.drained = true
		return 0, io.EOF
	}
	return n, nil
}

// Seek moves the source position. Offsets are in source bytes.
func (r *rateReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameSize := int64(r.format.FrameSize())
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(r.pos)*frameSize + offset
	case io.SeekEnd:
		abs = int64(r.frames)*frameSize + offset
	default:
		return 0, errors.New("rateReader.Seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("rateReader.Seek: negative position")
	}

	frame := abs / frameSize
	if frame > int64(r.frames) {
		frame = int64(r.frames)
	}
	r.pos = float64(frame)
	r.drained = frame >= int64(r.frames)
	return frame * frameSize, nil
}

func (r *rateReader) setSpeed(speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speed = ClampSpeed(speed)
}

// position returns how far into the source the reader has consumed.
func (r *rateReader) position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame := int(r.pos)
	if frame > r.frames {
		frame = r.frames
	}
	return time.Duration(frame) * time.Second / time.Duration(r.format.SampleRate)
}

func (r *rateReader) offsetFor(pos time.Duration) int64 {
	return int64(r.format.BytesFor(pos))
}

func (r *rateReader) currentSpeed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

func (r *rateReader) isDrained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drained
}

// convertPCM converts decoded PCM to the device format by remixing channels
// and resampling with linear interpolation.
func convertPCM(pcm *segment.PCM, to segment.Format) ([]byte, error) {
	if pcm == nil {
		return nil, ErrNoResource
	}
	if pcm.Format.BitDepth != 16 || to.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d -> %d", pcm.Format.BitDepth, to.BitDepth)
	}
	if pcm.Format.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d -> %d", pcm.Format.SampleRate, to.SampleRate)
	}

	data := remixChannels(pcm.Data, pcm.Format.Channels, to.Channels)
	if pcm.Format.SampleRate == to.SampleRate {
		return data, nil
	}
	return resample(data, to.Channels, pcm.Format.SampleRate, to.SampleRate), nil
}

func remixChannels(data []byte, from, to int) []byte {
	if from == to {
		return data
	}

	frames := len(data) / (from * 2)
	out := make([]byte, frames*to*2)
	for f := 0; f < frames; f++ {
		var sum int
		for ch := 0; ch < from; ch++ {
			sum += int(int16(binary.LittleEndian.Uint16(data[(f*from+ch)*2:])))
		}
		for ch := 0; ch < to; ch++ {
			v := sum / from
			if from < to {
				// Upmix copies the nearest source channel.
				src := min(ch, from-1)
				v = int(int16(binary.LittleEndian.Uint16(data[(f*from+src)*2:])))
			}
			binary.LittleEndian.PutUint16(out[(f*to+ch)*2:], uint16(int16(v)))
		}
	}
	return out
}

func resample(data []byte, channels, fromRate, toRate int) []byte {
	inFrames := len(data) / (channels * 2)
	if inFrames == 0 {
		return nil
	}
	ratio := float64(fromRate) / float64(toRate)
	outFrames := int(float64(inFrames) / ratio)
	out := make([]byte, outFrames*channels*2)

	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		for ch := 0; ch < channels; ch++ {
			s1 := int16(binary.LittleEndian.Uint16(data[(idx*channels+ch)*2:]))
			s2 := s1
			if idx+1 < inFrames {
				s2 = int16(binary.LittleEndian.Uint16(data[((idx+1)*channels+ch)*2:]))
			}
			v := float64(s1)*(1-frac) + float64(s2)*frac
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(int16(math.Round(v))))
		}
	}
	return out
}
