package synthesizer_test

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wartime-penguins/notary/model/hash"
	"github.com/wartime-penguins/notary/module/synthesizer"
)

func smallOptions() synthesizer.Options {
	return synthesizer.Options{
		Width:      96,
		Height:     64,
		Frames:     3,
		PixelSize:  2,
		Snowflakes: 20,
		Delay:      2,
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	s, err := synthesizer.New(smallOptions())
	require.NoError(t, err)

	seed := hash.Seed([]byte{0x01, 0x02})

	first, err := s.Generate(seed)
	require.NoError(t, err)
	second, err := s.Generate(seed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerate_SeedsDiffer(t *testing.T) {
	s, err := synthesizer.New(smallOptions())
	require.NoError(t, err)

	a, err := s.Generate(1)
	require.NoError(t, err)
	b, err := s.Generate(2)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestGenerate_ValidGIF(t *testing.T) {
	opts := smallOptions()
	s, err := synthesizer.New(opts)
	require.NoError(t, err)

	data, err := s.Generate(42)
	require.NoError(t, err)

	anim, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, anim.Image, opts.Frames)
	assert.Equal(t, 0, anim.LoopCount)
	for _, frame := range anim.Image {
		assert.Equal(t, opts.Width, frame.Bounds().Dx())
		assert.Equal(t, opts.Height, frame.Bounds().Dy())
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	opts := smallOptions()
	opts.Frames = 0
	_, err := synthesizer.New(opts)
	assert.Error(t, err)

	opts = smallOptions()
	opts.PixelSize = 0
	_, err = synthesizer.New(opts)
	assert.Error(t, err)
}

func TestSkyTheme_String(t *testing.T) {
	assert.Equal(t, "aurora", synthesizer.SkyAurora.String())
	assert.Equal(t, "unknown(9)", synthesizer.SkyTheme(9).String())
}
