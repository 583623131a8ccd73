package surface

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/sourcegraph/conc/pool"
	xdraw "golang.org/x/image/draw"
)

// Canvas is a draw.Image over a mapped XRGB8888 buffer.
type Canvas struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func NewCanvas(pix []byte, stride, width, height int) *Canvas {
	return &Canvas{
		Pix:    pix,
		Stride: stride,
		Rect:   image.Rect(0, 0, width, height),
	}
}

func (c *Canvas) ColorModel() color.Model {
	return color.RGBAModel
}

func (c *Canvas) Bounds() image.Rectangle {
	return c.Rect
}

func (c *Canvas) offset(x, y int) int {
	return y*c.Stride + x*4
}

func (c *Canvas) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(c.Rect) {
		return color.RGBA{}
	}
	i := c.offset(x, y)
	return color.RGBA{R: c.Pix[i+2], G: c.Pix[i+1], B: c.Pix[i], A: 0xff}
}

func (c *Canvas) Set(x, y int, col color.Color) {
	if !(image.Point{X: x, Y: y}).In(c.Rect) {
		return
	}
	r, g, b, _ := col.RGBA()
	c.SetXRGB(x, y, (r>>8)<<16|(g>>8)<<8|b>>8)
}

// SetXRGB stores a packed 0x00RRGGBB pixel.
func (c *Canvas) SetXRGB(x, y int, v uint32) {
	i := c.offset(x, y)
	binary.LittleEndian.PutUint32(c.Pix[i:i+4], v|0xff000000)
}

// Fill shades every pixel, splitting the canvas into horizontal bands drawn
// by up to workers goroutines.
func (c *Canvas) Fill(workers int, shade func(x, y int) uint32) {
	if workers < 1 {
		workers = 1
	}
	height := c.Rect.Dy()
	band := (height + workers - 1) / workers
	if band == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(workers)
	for y0 := c.Rect.Min.Y; y0 < c.Rect.Max.Y; y0 += band {
		y1 := min(y0+band, c.Rect.Max.Y)
		p.Go(func() {
			for y := y0; y < y1; y++ {
				for x := c.Rect.Min.X; x < c.Rect.Max.X; x++ {
					c.SetXRGB(x, y, shade(x, y))
				}
			}
		})
	}
	p.Wait()
}

// DrawImage scales src over the whole canvas.
func (c *Canvas) DrawImage(src image.Image) {
	xdraw.ApproxBiLinear.Scale(c, c.Rect, src, src.Bounds(), xdraw.Src, nil)
}
