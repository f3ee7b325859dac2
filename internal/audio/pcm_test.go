package audio

import (
	"testing"
)

func TestModelFormat_RoundTripPreservesFraming(t *testing.T) {
	// Arbitrary input framing: stereo 44.1 kHz.
	in := &Waveform{
		SampleRate: 44100,
		Channels:   2,
		Samples:    sine(88200, 0.1, 440),
	}

	pcm, err := ToModelFormat(in)
	if err != nil {
		t.Fatalf("ToModelFormat: %v", err)
	}
	if len(pcm)%ModelSampleBytes != 0 {
		t.Errorf("PCM bytes not sample-aligned: %d", len(pcm))
	}

	out, err := FromModelFormat(pcm)
	if err != nil {
		t.Fatalf("FromModelFormat: %v", err)
	}

	if out.SampleRate != 24000 {
		t.Errorf("sample rate: got %d, want 24000", out.SampleRate)
	}
	if out.Channels != 1 {
		t.Errorf("channels: got %d, want 1", out.Channels)
	}
	// Sample width is fixed at 2 bytes by the []int16 representation; the
	// byte count must match exactly.
	if len(out.Samples)*2 != len(pcm) {
		t.Errorf("sample width drifted: %d samples for %d bytes", len(out.Samples), len(pcm))
	}
}

func TestToModelFormat_ResampleRatio(t *testing.T) {
	// 1 second at 48 kHz mono must come out as ~1 second at 24 kHz.
	in := &Waveform{SampleRate: 48000, Channels: 1, Samples: make([]int16, 48000)}
	pcm, err := ToModelFormat(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(pcm) / ModelSampleBytes; got != 24000 {
		t.Errorf("resampled length: got %d samples, want 24000", got)
	}

	// Already at model rate: lengths must be identical.
	in = &Waveform{SampleRate: 24000, Channels: 1, Samples: make([]int16, 1200)}
	pcm, err = ToModelFormat(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(pcm) / ModelSampleBytes; got != 1200 {
		t.Errorf("identity resample length: got %d samples, want 1200", got)
	}
}

func TestDownmix_AveragesChannels(t *testing.T) {
	// Interleaved stereo frames: (100, 200), (-100, 100), (32767, 32767).
	stereo := []int16{100, 200, -100, 100, 32767, 32767}
	mono := downmix(stereo, 2)

	want := []int16{150, 0, 32767}
	if len(mono) != len(want) {
		t.Fatalf("frame count: got %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("frame %d: got %d, want %d", i, mono[i], want[i])
		}
	}
}

func TestResampleLinear_Interpolates(t *testing.T) {
	// Doubling the rate of a ramp should interpolate midpoints.
	in := []int16{0, 100, 200, 300}
	out := resampleLinear(in, 1000, 2000)

	if len(out) != 8 {
		t.Fatalf("length: got %d, want 8", len(out))
	}
	// Even indices hit the original samples, odd indices the midpoints.
	checks := map[int]int16{0: 0, 1: 50, 2: 100, 3: 150, 4: 200, 5: 250, 6: 300}
	for i, want := range checks {
		if out[i] != want {
			t.Errorf("out[%d]: got %d, want %d", i, out[i], want)
		}
	}
}

func TestFromModelFormat_Validation(t *testing.T) {
	if _, err := FromModelFormat(nil); err == nil {
		t.Error("expected error for empty PCM")
	}
	if _, err := FromModelFormat([]byte{0x01}); err == nil {
		t.Error("expected error for odd-length PCM")
	}
}
