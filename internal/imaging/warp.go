package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/spherical/table-extractor/internal/domain"
)

// ErrDegenerateQuad is returned when the four corners do not span an area
var ErrDegenerateQuad = errors.New("degenerate quadrilateral")

// homography maps the unit square onto a quadrilateral:
// (0,0)->lt, (1,0)->rt, (1,1)->rb, (0,1)->lb.
type homography struct {
	a, b, c, d, e, f, g, h float64
}

func squareToQuad(q [4]domain.Point) (homography, error) {
	x0, y0 := q[0].X, q[0].Y
	x1, y1 := q[1].X, q[1].Y
	x2, y2 := q[2].X, q[2].Y
	x3, y3 := q[3].X, q[3].Y

	sx := x0 - x1 + x2 - x3
	sy := y0 - y1 + y2 - y3

	if sx == 0 && sy == 0 {
		hm := homography{
			a: x1 - x0, b: x3 - x0, c: x0,
			d: y1 - y0, e: y3 - y0, f: y0,
		}
		if hm.a*hm.e-hm.b*hm.d == 0 {
			return homography{}, ErrDegenerateQuad
		}
		return hm, nil
	}

	dx1, dx2 := x1-x2, x3-x2
	dy1, dy2 := y1-y2, y3-y2
	den := dx1*dy2 - dx2*dy1
	if den == 0 {
		return homography{}, ErrDegenerateQuad
	}
	g := (sx*dy2 - dx2*sy) / den
	h := (dx1*sy - sx*dy1) / den

	return homography{
		a: x1 - x0 + g*x1, b: x3 - x0 + h*x3, c: x0,
		d: y1 - y0 + g*y1, e: y3 - y0 + h*y3, f: y0,
		g: g, h: h,
	}, nil
}

func (m homography) apply(u, v float64) (float64, float64) {
	w := m.g*u + m.h*v + 1
	return (m.a*u + m.b*v + m.c) / w, (m.d*u + m.e*v + m.f) / w
}

// WarpSize returns the output size of a corrected crop: the longer of each
// pair of opposite edges.
func WarpSize(q [4]domain.Point) (int, int) {
	top := dist(q[0], q[1])
	bottom := dist(q[3], q[2])
	left := dist(q[0], q[3])
	right := dist(q[1], q[2])

	w := int(math.Round(math.Max(top, bottom)))
	h := int(math.Round(math.Max(left, right)))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Warp extracts the quadrilateral q (lt, rt, rb, lb) from src and returns it
// rectified into an upright rectangle.
func Warp(src image.Image, q [4]domain.Point) (*image.RGBA, error) {
	m, err := squareToQuad(q)
	if err != nil {
		return nil, err
	}

	rgba, ok := src.(*image.RGBA)
	if !ok {
		b := src.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, src, b.Min, draw.Src)
	}

	w, h := WarpSize(q)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for j := 0; j < h; j++ {
		v := (float64(j) + 0.5) / float64(h)
		for i := 0; i < w; i++ {
			u := (float64(i) + 0.5) / float64(w)
			x, y := m.apply(u, v)
			dst.SetRGBA(i, j, bilinear(rgba, x-0.5, y-0.5))
		}
	}
	return dst, nil
}

// bilinear samples src at continuous pixel coordinates, clamping to the edges.
func bilinear(src *image.RGBA, x, y float64) color.RGBA {
	b := src.Bounds()
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := rgbaAt(src, b, x0, y0)
	p10 := rgbaAt(src, b, x0+1, y0)
	p01 := rgbaAt(src, b, x0, y0+1)
	p11 := rgbaAt(src, b, x0+1, y0+1)

	lerp := func(c00, c10, c01, c11 uint8) uint8 {
		top := float64(c00)*(1-fx) + float64(c10)*fx
		bot := float64(c01)*(1-fx) + float64(c11)*fx
		return uint8(math.Round(top*(1-fy) + bot*fy))
	}

	return color.RGBA{
		R: lerp(p00.R, p10.R, p01.R, p11.R),
		G: lerp(p00.G, p10.G, p01.G, p11.G),
		B: lerp(p00.B, p10.B, p01.B, p11.B),
		A: lerp(p00.A, p10.A, p01.A, p11.A),
	}
}

func rgbaAt(src *image.RGBA, b image.Rectangle, x, y int) color.RGBA {
	x += b.Min.X
	y += b.Min.Y
	if x < b.Min.X {
		x = b.Min.X
	} else if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	} else if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	return src.RGBAAt(x, y)
}

func dist(a, b domain.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
