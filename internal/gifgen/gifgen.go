package gifgen

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"sort"

	"github.com/nfnt/resize"
)

// Options configures GIF generation
type Options struct {
	FPS      int
	MaxWidth uint
}

// Generate writes frames to outputPath as a looping GIF and returns its size in bytes
func Generate(frames []image.Image, outputPath string, opts Options) (int64, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	if opts.FPS <= 0 {
		opts.FPS = 2
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}

	// GIF delays are in 100ths of a second.
	delay := 100 / opts.FPS
	if delay < 1 {
		delay = 1
	}

	bounds := frames[0].Bounds()
	width := opts.MaxWidth
	if uint(bounds.Dx()) < width {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))

	palette := buildPalette(frames[0])
	g := &gif.GIF{
		Image: make([]*image.Paletted, len(frames)),
		Delay: make([]int, len(frames)),
	}
	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)
		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, resized.Bounds().Min)
		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// buildPalette keeps the 255 most frequent colors of a sampled image plus
// transparent, padding with grays
func buildPalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := map[color.RGBA]int{}
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 4 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 4 {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}]++
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		ci, cj := colors[i], colors[j]
		return uint32(ci.R)<<24|uint32(ci.G)<<16|uint32(ci.B)<<8|uint32(ci.A) <
			uint32(cj.R)<<24|uint32(cj.G)<<16|uint32(cj.B)<<8|uint32(cj.A)
	})

	palette := color.Palette{color.RGBA{}}
	for _, c := range colors {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
