// Package fixture provides hand poses and encoded frames for tests.
package fixture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// OpenPalm returns the 21 landmarks of a right hand with all fingers
// extended, as normalized x, y, z triples in index order.
func OpenPalm() [][3]float64 {
	return [][3]float64{
		{0.5, 0.8, 0.0},    // wrist
		{0.55, 0.75, 0.02}, // thumb
		{0.62, 0.70, 0.03},
		{0.68, 0.65, 0.03},
		{0.73, 0.60, 0.03},
		{0.55, 0.68, 0.0}, // index
		{0.57, 0.55, 0.0},
		{0.58, 0.45, 0.0},
		{0.58, 0.35, 0.0},
		{0.50, 0.66, 0.0}, // middle
		{0.50, 0.52, 0.0},
		{0.50, 0.40, 0.0},
		{0.50, 0.28, 0.0},
		{0.45, 0.68, 0.0}, // ring
		{0.43, 0.55, 0.0},
		{0.42, 0.45, 0.0},
		{0.42, 0.35, 0.0},
		{0.40, 0.70, 0.0}, // pinky
		{0.37, 0.60, 0.0},
		{0.35, 0.50, 0.0},
		{0.34, 0.42, 0.0},
	}
}

// ThumbsUp returns the 21 landmarks of a thumbs up pose. Z leaves [0,1]
// for the curled fingers.
func ThumbsUp() [][3]float64 {
	return [][3]float64{
		{0.5, 0.8, 0.0},
		{0.55, 0.75, 0.0},
		{0.58, 0.65, 0.0},
		{0.58, 0.50, 0.0},
		{0.58, 0.35, 0.0},
		{0.55, 0.70, -0.02},
		{0.55, 0.68, -0.05},
		{0.52, 0.70, -0.04},
		{0.50, 0.72, -0.02},
		{0.50, 0.68, -0.02},
		{0.50, 0.66, -0.05},
		{0.47, 0.68, -0.04},
		{0.45, 0.70, -0.02},
		{0.45, 0.70, -0.02},
		{0.45, 0.68, -0.05},
		{0.42, 0.70, -0.04},
		{0.40, 0.72, -0.02},
		{0.40, 0.72, -0.02},
		{0.40, 0.70, -0.05},
		{0.37, 0.72, -0.04},
		{0.35, 0.74, -0.02},
	}
}

func gradient(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 128, A: 255})
		}
	}
	return img
}

// PNGFrame returns a width x height gradient encoded as PNG.
func PNGFrame(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGFrame returns a width x height gradient encoded as JPEG.
func JPEGFrame(width, height int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
