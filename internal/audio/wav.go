package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// Waveform holds decoded PCM-16 audio with its framing parameters.
type Waveform struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved when Channels > 1
}

// Duration returns the waveform length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 || w.Channels == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate*w.Channels)
}

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV encodes the waveform into a standard PCM WAV file image.
func EncodeWAV(w *Waveform) ([]byte, error) {
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", w.SampleRate)
	}
	if w.Channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", w.Channels)
	}

	bitsPerSample := uint16(16)
	numChannels := uint16(w.Channels)
	dataSize := uint32(len(w.Samples) * 2)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(w.SampleRate),
		ByteRate:      uint32(w.SampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(w.Samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, w.Samples); err != nil {
		return nil, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes a PCM WAV file image. It walks the RIFF chunk list, so
// files with extra chunks (LIST, fact) decode fine. Only 16-bit linear PCM
// is supported.
func DecodeWAV(data []byte) (*Waveform, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		w       Waveform
		haveFmt bool
		pcm     []byte
	)

	// Walk chunks after the 12-byte RIFF header.
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported audio format %d, want PCM", format)
			}
			w.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return nil, fmt.Errorf("missing data chunk")
	}
	if w.Channels <= 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid format: channels=%d rate=%d", w.Channels, w.SampleRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("odd PCM data length %d", len(pcm))
	}

	w.Samples = bytesToSamples(pcm)
	return &w, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeWAV(data)
}

// WriteWAVFile encodes the waveform and writes it to path, overwriting.
func WriteWAVFile(path string, w *Waveform) error {
	data, err := EncodeWAV(w)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(s))
	}
	return pcm
}
