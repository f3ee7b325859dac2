package audio

import "fmt"

// The speech model consumes and produces exactly this sample format. Both
// conversion directions share these constants so the framing cannot drift
// between them.
const (
	ModelSampleRate  = 24000
	ModelChannels    = 1
	ModelSampleBytes = 2
)

// ToModelFormat converts an arbitrary waveform into raw model-format PCM
// bytes: mono, 16-bit signed little-endian, 24 kHz, no container header.
func ToModelFormat(w *Waveform) ([]byte, error) {
	if w.Channels <= 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid waveform: channels=%d rate=%d", w.Channels, w.SampleRate)
	}
	mono := downmix(w.Samples, w.Channels)
	resampled := resampleLinear(mono, w.SampleRate, ModelSampleRate)
	return samplesToBytes(resampled), nil
}

// FromModelFormat wraps raw model-format PCM bytes in a waveform with the
// exact inverse framing.
func FromModelFormat(pcm []byte) (*Waveform, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcm)%ModelSampleBytes != 0 {
		return nil, fmt.Errorf("PCM length %d is not sample-aligned", len(pcm))
	}
	return &Waveform{
		SampleRate: ModelSampleRate,
		Channels:   ModelChannels,
		Samples:    bytesToSamples(pcm),
	}, nil
}

// downmix averages interleaved channels into one.
func downmix(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// resampleLinear converts the sample rate by linear interpolation. Good
// enough for speech; the model does not care about imaging above 12 kHz.
func resampleLinear(in []int16, from, to int) []int16 {
	if from == to || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}
