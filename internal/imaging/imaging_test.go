package imaging

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestResize_NarrowImageUnchanged(t *testing.T) {
	for _, w := range []int{1, 640, 1199, 1200} {
		img := gradient(w, 50)
		out, resized, err := Resize(img, 1200)
		require.NoError(t, err)
		assert.False(t, resized)
		// same value, no copy
		assert.Same(t, img, out.(*image.RGBA))
	}
}

func TestResize_WideImageBounded(t *testing.T) {
	tests := []struct{ w, h int }{
		{2000, 1000},
		{1201, 799},
		{4961, 7016},
		{3000, 7},
	}

	for _, tt := range tests {
		out, resized, err := Resize(gradient(tt.w, tt.h), 1200)
		require.NoError(t, err)
		assert.True(t, resized)
		b := out.Bounds()
		assert.Equal(t, 1200, b.Dx())
		want := float64(tt.h) * 1200 / float64(tt.w)
		assert.LessOrEqual(t, math.Abs(float64(b.Dy())-want), 1.0, "height for %dx%d", tt.w, tt.h)
	}
}

func TestResize_Nil(t *testing.T) {
	_, _, err := Resize(nil, 100)
	assert.Error(t, err)
}

func TestResizer_NeverFails(t *testing.T) {
	r := NewResizer(0, nil)
	assert.Equal(t, DefaultMaxWidth, r.MaxWidth())

	out, resized := r.Resize(nil)
	assert.Nil(t, out)
	assert.False(t, resized)

	img := gradient(2400, 100)
	out, resized = r.Resize(img)
	assert.True(t, resized)
	assert.Equal(t, 1200, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
}

func TestWarp_AxisAlignedIsCrop(t *testing.T) {
	src := gradient(100, 80)
	q := [4]domain.Point{{X: 10, Y: 20}, {X: 50, Y: 20}, {X: 50, Y: 60}, {X: 10, Y: 60}}

	out, err := Warp(src, q)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())

	for _, p := range []image.Point{{0, 0}, {39, 0}, {17, 23}, {39, 39}} {
		assert.Equal(t, src.RGBAAt(10+p.X, 20+p.Y), out.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestWarp_PerspectiveCornersMapped(t *testing.T) {
	src := gradient(300, 300)
	q := [4]domain.Point{{X: 40, Y: 30}, {X: 260, Y: 50}, {X: 240, Y: 270}, {X: 20, Y: 250}}

	m, err := squareToQuad(q)
	require.NoError(t, err)
	for i, uv := range [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		x, y := m.apply(uv[0], uv[1])
		assert.InDelta(t, q[i].X, x, 1e-9)
		assert.InDelta(t, q[i].Y, y, 1e-9)
	}

	out, err := Warp(src, q)
	require.NoError(t, err)
	w, h := WarpSize(q)
	assert.Equal(t, w, out.Bounds().Dx())
	assert.Equal(t, h, out.Bounds().Dy())
}

func TestWarp_Degenerate(t *testing.T) {
	q := [4]domain.Point{{X: 1, Y: 1}, {X: 5, Y: 1}, {X: 9, Y: 1}, {X: 13, Y: 1}}
	_, err := Warp(gradient(20, 20), q)
	assert.ErrorIs(t, err, ErrDegenerateQuad)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	img := gradient(30, 20)

	pngPath := filepath.Join(dir, "a.png")
	require.NoError(t, SavePNG(pngPath, img))
	got, format, err := Load(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, img.Bounds(), got.Bounds())

	jpgPath := filepath.Join(dir, "a.jpg")
	require.NoError(t, SaveJPEG(jpgPath, img, 90))
	_, format, err = Load(jpgPath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	_, _, err = Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
