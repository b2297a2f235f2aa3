// Package synthesizer renders the animated penguin scene notarized for every
// advance request. Generate is a pure function of its seed and options.
package synthesizer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"sort"

	"golang.org/x/exp/rand"
)

type Options struct {
	Width  int
	Height int
	Frames int
	// PixelSize is the side of one drawn "pixel" in image pixels.
	PixelSize int
	// Snowflakes is the number of flakes drawn on every frame.
	Snowflakes int
	// Delay between frames in hundredths of a second.
	Delay int
}

func DefaultOptions() Options {
	return Options{
		Width:      1200,
		Height:     800,
		Frames:     100,
		PixelSize:  8,
		Snowflakes: 300,
		Delay:      2,
	}
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 || o.Width > 0xffff || o.Height > 0xffff {
		return fmt.Errorf("invalid dimensions %dx%d", o.Width, o.Height)
	}
	if o.Frames <= 0 {
		return fmt.Errorf("invalid frame count %d", o.Frames)
	}
	if o.PixelSize <= 0 {
		return fmt.Errorf("invalid pixel size %d", o.PixelSize)
	}
	if o.Snowflakes < 0 || o.Delay < 0 {
		return fmt.Errorf("snowflakes and delay must not be negative")
	}
	return nil
}

type Synthesizer struct {
	opts Options
}

func New(opts Options) (*Synthesizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{opts: opts}, nil
}

// Generate renders the scene for seed and returns it GIF-encoded.
func (s *Synthesizer) Generate(seed uint64) ([]byte, error) {
	rng := rand.New(rand.NewSource(seed))
	c := newCanvas(s.opts)

	theme := SkyTheme(rng.Intn(numSkyThemes))
	penguins := newPenguins(rng, s.opts)

	anim := &gif.GIF{
		Image:     make([]*image.Paletted, 0, s.opts.Frames),
		Delay:     make([]int, 0, s.opts.Frames),
		Disposal:  make([]byte, 0, s.opts.Frames),
		LoopCount: 0,
	}

	for i := 0; i < s.opts.Frames; i++ {
		frame := c.newFrame()
		c.drawSky(frame, theme)
		c.drawGround(frame)

		for _, flake := range newSnowflakes(rng, s.opts) {
			c.drawSnowflake(frame, flake)
		}

		for _, p := range penguins {
			p.advance(s.opts)
		}
		// back to front
		sort.SliceStable(penguins, func(a, b int) bool {
			return penguins[a].z > penguins[b].z
		})
		for _, p := range penguins {
			c.drawPenguin(frame, p)
		}

		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, s.opts.Delay)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("could not encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

// quantize reduces every channel to four levels, for the 8-bit look.
func quantize(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 64 * 64, G: c.G / 64 * 64, B: c.B / 64 * 64, A: 0xff}
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func scale(c color.RGBA, factor float64) color.RGBA {
	return rgb(uint8(float64(c.R)*factor), uint8(float64(c.G)*factor), uint8(float64(c.B)*factor))
}

// canvas draws on paletted frames, caching palette lookups per color.
type canvas struct {
	opts    Options
	palette color.Palette
	indexes map[color.RGBA]uint8
}

func newCanvas(opts Options) *canvas {
	return &canvas{
		opts:    opts,
		palette: palette.Plan9,
		indexes: make(map[color.RGBA]uint8),
	}
}

func (c *canvas) newFrame() *image.Paletted {
	return image.NewPaletted(image.Rect(0, 0, c.opts.Width, c.opts.Height), c.palette)
}

func (c *canvas) index(col color.RGBA) uint8 {
	if idx, ok := c.indexes[col]; ok {
		return idx
	}
	idx := uint8(c.palette.Index(col))
	c.indexes[col] = idx
	return idx
}

// fillRow paints image row y between x0 and x1 (exclusive).
func (c *canvas) fillRow(img *image.Paletted, y, x0, x1 int, idx uint8) {
	if y < 0 || y >= c.opts.Height {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > c.opts.Width {
		x1 = c.opts.Width
	}
	if x0 >= x1 {
		return
	}
	row := img.Pix[y*img.Stride+x0 : y*img.Stride+x1]
	for i := range row {
		row[i] = idx
	}
}

// rect fills a w*h rectangle of drawn pixels at drawn-pixel coordinates x, y.
func (c *canvas) rect(img *image.Paletted, x, y, w, h int, col color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	ps := c.opts.PixelSize
	idx := c.index(col)
	for py := y * ps; py < (y+h)*ps; py++ {
		c.fillRow(img, py, x*ps, (x+w)*ps, idx)
	}
}

func (c *canvas) pixel(img *image.Paletted, x, y int, col color.RGBA) {
	c.rect(img, x, y, 1, 1, col)
}
