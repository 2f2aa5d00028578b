package dataset

import (
	"math/rand"
)

const (
	glyphW = 5
	glyphH = 7
)

// 5x7 stroke font for the ten digits.
var glyphs = [NumClasses][glyphH]string{
	{" ### ", "#   #", "#  ##", "# # #", "##  #", "#   #", " ### "},
	{"  #  ", " ##  ", "  #  ", "  #  ", "  #  ", "  #  ", " ### "},
	{" ### ", "#   #", "    #", "   # ", "  #  ", " #   ", "#####"},
	{"#####", "   # ", "  #  ", "   # ", "    #", "#   #", " ### "},
	{"   # ", "  ## ", " # # ", "#  # ", "#####", "   # ", "   # "},
	{"#####", "#    ", "#### ", "    #", "    #", "#   #", " ### "},
	{"  ## ", " #   ", "#    ", "#### ", "#   #", "#   #", " ### "},
	{"#####", "    #", "   # ", "  #  ", " #   ", " #   ", " #   "},
	{" ### ", "#   #", "#   #", " ### ", "#   #", "#   #", " ### "},
	{" ### ", "#   #", "#   #", " ####", "    #", "   # ", " ##  "},
}

// Synthesize renders n labelled digit images from rng. Each glyph is scaled,
// slanted and offset at random inside the canvas, then speckled with noise.
func Synthesize(n int, rng *rand.Rand) SampleBatch {
	batch := newBatch(n)
	for i := 0; i < n; i++ {
		label := rng.Intn(NumClasses)
		batch.Images = append(batch.Images, renderDigit(label, rng))
		batch.Labels = append(batch.Labels, label)
	}
	return batch
}

func renderDigit(digit int, rng *rand.Rand) []byte {
	img := make([]byte, Rows*Cols)
	glyph := glyphs[digit]

	sx := 2.4 + rng.Float64()*0.8
	sy := 2.6 + rng.Float64()*0.6
	shear := (rng.Float64() - 0.5) * 0.4
	w := sx * glyphW
	h := sy * glyphH
	ox := 2 + rng.Float64()*(Cols-4-w)
	oy := 2 + rng.Float64()*(Rows-4-h)
	ink := 170 + rng.Intn(86)

	for y := 0; y < Rows; y++ {
		for x := 0; x < Cols; x++ {
			fy := (float64(y) - oy) / sy
			fx := (float64(x) - ox - shear*(float64(y)-oy-h/2)) / sx
			if fx < 0 || fy < 0 || fx >= glyphW || fy >= glyphH {
				continue
			}
			if glyph[int(fy)][int(fx)] != '#' {
				continue
			}
			v := ink - rng.Intn(40)
			if v < 0 {
				v = 0
			}
			img[y*Cols+x] = byte(v)
		}
	}

	speckles := rng.Intn(6)
	for i := 0; i < speckles; i++ {
		img[rng.Intn(len(img))] = byte(40 + rng.Intn(120))
	}
	return img
}
