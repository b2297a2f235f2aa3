package synthesizer

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/exp/rand"
)

type SkyTheme uint8

const (
	SkyDay SkyTheme = iota
	SkyDawn
	SkyDusk
	SkyNight
	SkyAurora

	numSkyThemes = 5
)

func (t SkyTheme) String() string {
	switch t {
	case SkyDay:
		return "day"
	case SkyDawn:
		return "dawn"
	case SkyDusk:
		return "dusk"
	case SkyNight:
		return "night"
	case SkyAurora:
		return "aurora"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// gradient returns the sky colors at the top and at the bottom of the image.
func (t SkyTheme) gradient() (top, bottom color.RGBA) {
	switch t {
	case SkyDay:
		return rgb(100, 150, 255), rgb(180, 220, 255)
	case SkyDawn:
		return rgb(70, 100, 150), rgb(255, 180, 150)
	case SkyDusk:
		return rgb(60, 80, 120), rgb(255, 140, 100)
	case SkyNight:
		return rgb(10, 20, 40), rgb(40, 50, 80)
	case SkyAurora:
		return rgb(20, 40, 60), rgb(40, 180, 120)
	default:
		panic(fmt.Sprintf("unhandled sky theme %v", t))
	}
}

var (
	white  = rgb(255, 255, 255)
	black  = rgb(0, 0, 0)
	brown  = rgb(139, 69, 19)
	silver = rgb(192, 192, 192)
	orange = rgb(255, 165, 0)
	belly  = rgb(230, 230, 230)
)

const (
	horizon       = 0.4
	movementSpeed = 0.01
)

func (c *canvas) drawSky(img *image.Paletted, theme SkyTheme) {
	top, bottom := theme.gradient()
	for y := 0; y < c.opts.Height; y++ {
		p := float64(y) / float64(c.opts.Height)
		col := rgb(
			uint8(float64(top.R)*(1-p)+float64(bottom.R)*p),
			uint8(float64(top.G)*(1-p)+float64(bottom.G)*p),
			uint8(float64(top.B)*(1-p)+float64(bottom.B)*p),
		)
		c.fillRow(img, y, 0, c.opts.Width, c.index(col))
	}
}

// drawGround paints snow from the horizon down, darker towards the horizon.
func (c *canvas) drawGround(img *image.Paletted) {
	start := int(float64(c.opts.Height) * horizon)
	depth := c.opts.Height - start
	for y := start; y < c.opts.Height; y++ {
		p := float64(y-start) / float64(depth)
		v := uint8(255 - 40*(1-p))
		c.fillRow(img, y, 0, c.opts.Width, c.index(rgb(v, v, v)))
	}
}

type snowflake struct {
	x, y    int
	sparkle bool
}

func newSnowflakes(rng *rand.Rand, opts Options) []snowflake {
	flakes := make([]snowflake, opts.Snowflakes)
	for i := range flakes {
		flakes[i] = snowflake{
			x:       rng.Intn(opts.Width),
			y:       rng.Intn(opts.Height),
			sparkle: rng.Float64() < 0.3,
		}
	}
	return flakes
}

func (c *canvas) drawSnowflake(img *image.Paletted, f snowflake) {
	x, y := f.x/c.opts.PixelSize, f.y/c.opts.PixelSize
	c.pixel(img, x, y, white)
	if f.sparkle {
		c.pixel(img, x, y-1, white)
		c.pixel(img, x, y+1, white)
		c.pixel(img, x-1, y, white)
		c.pixel(img, x+1, y, white)
	}
}

type penguin struct {
	x, y  int
	z     float64 // 0 is the front, 1 the back
	size  int
	color color.RGBA
	// rightKnife places the knife in the right flipper.
	rightKnife bool
}

func newPenguins(rng *rand.Rand, opts Options) []*penguin {
	n := 2 + rng.Intn(5)
	colors := make([]color.RGBA, n)
	for i := range colors {
		colors[i] = rgb(uint8(50+rng.Intn(170)), uint8(50+rng.Intn(170)), uint8(50+rng.Intn(170)))
	}

	minSize := opts.Height / 10
	if minSize < 1 {
		minSize = 1
	}
	section := opts.Width / n

	penguins := make([]*penguin, 0, n)
	for i, col := range colors {
		p := &penguin{
			z:     rng.Float64(),
			size:  minSize + rng.Intn(minSize),
			color: col,
		}

		start, end := section*i, section*(i+1)
		lo, hi := start+p.size/2, end-p.size/2
		if hi <= lo {
			p.x = (start + end) / 2
		} else {
			p.x = lo + rng.Intn(hi-lo)
		}

		top, bottom := p.yRange(opts)
		p.y = top
		if bottom > top {
			p.y += rng.Intn(bottom - top)
		}
		p.rightKnife = rng.Float64() < 0.5

		penguins = append(penguins, p)
	}
	return penguins
}

func (p *penguin) yRange(opts Options) (int, int) {
	h := float64(opts.Height) * horizon
	return int(h + p.z*h*0.3), opts.Height - p.size - opts.Height/8
}

// advance walks the penguin towards the viewer, wrapping to the back.
func (p *penguin) advance(opts Options) {
	p.z -= movementSpeed
	if p.z < 0 {
		p.z = 1
	}
	top, bottom := p.yRange(opts)
	if bottom < top {
		bottom = top
	}
	p.y = top + (bottom-top)/2
}

func (c *canvas) drawPenguin(img *image.Paletted, p *penguin) {
	ps := c.opts.PixelSize
	depth := 1 - p.z*0.3
	bx, by := p.x/ps, p.y/ps
	size := int(float64(p.size)*depth) / ps
	body := quantize(scale(p.color, depth))

	// legs
	legSpacing := size / 3
	c.rect(img, bx+legSpacing-1, by+size, 2, 3, body)
	c.rect(img, bx+size-legSpacing-1, by+size, 2, 3, body)

	c.rect(img, bx, by, size, size, body)

	bellyWidth := int(float64(size) * 0.7)
	c.rect(img, bx+(size-bellyWidth)/2, by+size/3, bellyWidth, size/2, quantize(scale(belly, depth)))

	head := int(float64(size) * 0.6)
	c.rect(img, bx+(size-head)/2, by-head/2, head, head, body)

	eyeSpacing := head / 3
	eyeY := by - head/4
	c.pixel(img, bx+size/2-eyeSpacing, eyeY, black)
	c.pixel(img, bx+size/2+eyeSpacing-1, eyeY, black)
	c.pixel(img, bx+size/2-eyeSpacing, eyeY-1, white)
	c.pixel(img, bx+size/2+eyeSpacing-1, eyeY-1, white)

	beak := quantize(orange)
	c.rect(img, bx+size/2-1, eyeY+1, 3, 1, beak)
	c.pixel(img, bx+size/2, eyeY+2, beak)

	const flipper = 2
	c.rect(img, bx-flipper, by+size/3, flipper, size/3, body)
	c.rect(img, bx+size, by+size/3, flipper, size/3, body)

	const handle, blade = 8, 14
	knifeX, guardX := bx-flipper-3, bx-flipper-5
	if p.rightKnife {
		knifeX, guardX = bx+size+flipper, bx+size+flipper-2
	}
	grip := by + size/3 - handle
	c.rect(img, knifeX, grip, 3, handle, brown)
	c.rect(img, knifeX, grip-blade, 3, blade, silver)
	c.rect(img, knifeX, grip-blade-2, 3, 2, silver)
	c.rect(img, guardX, grip, 7, 2, brown)
}
