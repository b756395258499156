package audioconv

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmWAV builds a 16-bit PCM wav clip.
func pcmWAV(t *testing.T, rate, channels int, samples []int16) []byte {
	t.Helper()

	var b bytes.Buffer
	dataLen := len(samples) * 2
	w := func(v any) { require.NoError(t, binary.Write(&b, binary.LittleEndian, v)) }

	b.WriteString("RIFF")
	w(uint32(36 + dataLen))
	b.WriteString("WAVEfmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(channels))
	w(uint32(rate))
	w(uint32(rate * channels * 2))
	w(uint16(channels * 2))
	w(uint16(16))
	b.WriteString("data")
	w(uint32(dataLen))
	w(samples)
	return b.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = 16384
	}

	got, err := Decode(pcmWAV(t, 16000, 1, samples), "audio/wav", Options{})
	require.NoError(t, err)
	require.Len(t, got, 1600)
	assert.InDelta(t, 0.5, got[0], 0.001)
}

func TestDecodeWAVStereoResampled(t *testing.T) {
	// 0.1s of 32 kHz stereo, left loud and right silent
	samples := make([]int16, 3200*2)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 32767
	}

	got, err := Decode(pcmWAV(t, 32000, 2, samples), "", Options{})
	require.NoError(t, err)
	assert.Len(t, got, 1600)
	assert.InDelta(t, 0.5, got[800], 0.01)
}

func TestDecodeMaxSamples(t *testing.T) {
	got, err := Decode(pcmWAV(t, 16000, 1, make([]int16, 1000)), "wav", Options{MaxSamples: 100})
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode([]byte("\x1aE\xdf\xa3webm"), "webm", Options{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Decode(nil, "wav", Options{})
	assert.Error(t, err)
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"audio/ogg;codecs=opus": "ogg",
		".MP3":                  "mp3",
		"audio/x-wav":           "wav",
		"audio/mpeg":            "mp3",
		"flac":                  "flac",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeFormat(in), in)
	}
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "wav", sniff([]byte("RIFF....WAVE")))
	assert.Equal(t, "ogg", sniff([]byte("OggS\x00")))
	assert.Equal(t, "mp3", sniff([]byte("ID3\x04")))
	assert.Equal(t, "mp3", sniff([]byte{0xFF, 0xFB, 0x90}))
	assert.Equal(t, "", sniff([]byte("nope")))
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, 1}
	assert.Equal(t, in, resampleLinear(in, 16000, 16000))

	up := resampleLinear([]float32{0, 1}, 8000, 16000)
	assert.Equal(t, []float32{0, 0.5, 1, 1}, up)
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, downmix([]float32{1, 0, -1, 1}, 2))
}
