package phash

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func solidImage(w, h int, c color.Gray) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	return img
}

func TestHammingSymmetric(t *testing.T) {
	a := "0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f"
	b := "f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0"
	if got := Hamming(a, b); got != Hamming(b, a) {
		t.Fatalf("hamming not symmetric: %d vs %d", got, Hamming(b, a))
	}
}

func TestHammingSelfIsZero(t *testing.T) {
	a := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef01234567"
	if got := Hamming(a, a); got != 0 {
		t.Fatalf("hamming(a,a) = %d, want 0", got)
	}
}

func TestHammingBounds(t *testing.T) {
	allZero := make([]byte, 64)
	for i := range allZero {
		allZero[i] = '0'
	}
	allF := make([]byte, 64)
	for i := range allF {
		allF[i] = 'f'
	}
	got := Hamming(string(allZero), string(allF))
	if got != 256 {
		t.Fatalf("hamming(0,f) = %d, want 256", got)
	}
}

func TestHammingLengthMismatch(t *testing.T) {
	if got := Hamming("ab", "abcd"); got != -1 {
		t.Fatalf("hamming with mismatched length = %d, want -1", got)
	}
}

func TestHashImageUniformIsAllOneBits(t *testing.T) {
	// A perfectly uniform image has every cell mean equal to the global
	// mean, and the tie-break (>=) sets every bit to 1.
	img := solidImage(64, 64, color.Gray{Y: 128})
	h := HashImage(img)
	if len(h) != 64 {
		t.Fatalf("hash length = %d, want 64", len(h))
	}
	for _, c := range h {
		if c != 'f' {
			t.Fatalf("uniform image hash not all-ones: %s", h)
		}
	}
}

func TestHashImageSplitProducesMixedBits(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(0)
			if x >= 32 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	h := HashImage(img)
	zero := Hamming(h, strings.Repeat("0", 64))
	if zero <= 0 || zero >= 256 {
		t.Fatalf("split image hash not mixed: hamming-from-zero=%d", zero)
	}
}
