package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Shot is a captured frame and the point that was activated in it
type Shot struct {
	Image   image.Image
	Click   image.Point
	Clicked bool
}

var (
	outline = color.RGBA{0, 0, 0, 255}
	fill    = color.RGBA{255, 255, 255, 255}
	ripple  = color.RGBA{66, 133, 244, 160}
)

// Apply returns copies of the shots with a pointer drawn at each click point
// and a ripple around it
func Apply(shots []Shot) []image.Image {
	out := make([]image.Image, len(shots))
	for i, s := range shots {
		out[i] = drawShot(s)
	}
	return out
}

func drawShot(s Shot) image.Image {
	bounds := s.Image.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, s.Image, bounds.Min, draw.Src)

	if !s.Clicked {
		return img
	}
	for _, r := range []int{10, 16} {
		drawCircle(img, s.Click, r, ripple)
	}
	drawArrow(img, s.Click)
	return img
}

// drawArrow draws a 12x17 arrow pointer with its tip at p
func drawArrow(img *image.RGBA, p image.Point) {
	for dy := 0; dy <= 16; dy++ {
		width := dy * 3 / 4
		if dy > 11 {
			width = 4
		}
		for dx := 0; dx <= width; dx++ {
			c := fill
			if dx == 0 || dx == width || dy == 16 {
				c = outline
			}
			set(img, p.X+dx, p.Y+dy, c)
		}
	}
}

func drawCircle(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	steps := int(2 * math.Pi * float64(radius))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x := center.X + int(math.Round(float64(radius)*math.Cos(a)))
		y := center.Y + int(math.Round(float64(radius)*math.Sin(a)))
		set(img, x, y, c)
		set(img, x+1, y, c)
	}
}

func set(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
