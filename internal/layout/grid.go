// Package layout reconstructs a table grid from recognized word boxes. It is
// used by OCR engines that only report words, not cell structure.
package layout

import (
	"sort"

	"github.com/spherical/table-extractor/internal/domain"
)

// DefaultGapFactor is the horizontal gap, in median word heights, that
// separates two cells on the same line
const DefaultGapFactor = 1.2

// Word is one recognized word with its bounding box in image pixels
type Word struct {
	Text       string
	Box        domain.Rect
	Confidence float64 // 0..1
}

type line struct {
	y1, y2 float64
	words  []Word
}

type chunk struct {
	row   int
	box   domain.Rect
	words []Word
}

type span struct {
	x1, x2 float64
}

// Grid groups words into lines, splits lines into cells on wide gaps and
// assigns cells to column bands. Entries are returned row by row, left to
// right. A cell spanning several bands gets a column range.
func Grid(words []Word, gapFactor float64) []domain.OCREntry {
	if len(words) == 0 {
		return nil
	}
	if gapFactor <= 0 {
		gapFactor = DefaultGapFactor
	}

	lines := groupLines(words)
	gap := medianHeight(words) * gapFactor

	var chunks []chunk
	perRow := make([]int, len(lines))
	for i, ln := range lines {
		for _, c := range splitLine(ln, gap) {
			c.row = i
			chunks = append(chunks, c)
			perRow[i]++
		}
	}

	bands := columnBands(chunks, perRow)

	entries := make([]domain.OCREntry, 0, len(chunks))
	for _, c := range chunks {
		cs, ce := bandRange(bands, c.box)
		if cs < 0 {
			cs = nearestBand(bands, c.box)
			ce = cs
		}
		entry := domain.OCREntry{
			Logic: [4]int{c.row, c.row, cs, ce},
			Box:   [4]float64{c.box.X1, c.box.Y1, c.box.X2, c.box.Y2},
		}
		for _, w := range c.words {
			entry.Fragments = append(entry.Fragments, domain.Fragment{Text: w.Text, Confidence: w.Confidence})
		}
		entries = append(entries, entry)
	}
	return entries
}

// groupLines sorts words top to bottom and merges words whose vertical
// extents overlap by at least half of the smaller height.
func groupLines(words []Word) []line {
	sorted := append([]Word(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return centerY(sorted[i].Box) < centerY(sorted[j].Box)
	})

	var lines []line
	for _, w := range sorted {
		if n := len(lines); n > 0 && sameLine(lines[n-1], w.Box) {
			ln := &lines[n-1]
			ln.words = append(ln.words, w)
			ln.y1 = min(ln.y1, w.Box.Y1)
			ln.y2 = max(ln.y2, w.Box.Y2)
			continue
		}
		lines = append(lines, line{y1: w.Box.Y1, y2: w.Box.Y2, words: []Word{w}})
	}

	for i := range lines {
		ws := lines[i].words
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].Box.X1 < ws[b].Box.X1 })
	}
	return lines
}

func sameLine(ln line, b domain.Rect) bool {
	overlap := min(ln.y2, b.Y2) - max(ln.y1, b.Y1)
	smaller := min(ln.y2-ln.y1, b.Y2-b.Y1)
	if smaller <= 0 {
		return overlap >= 0
	}
	return overlap >= smaller/2
}

func splitLine(ln line, gap float64) []chunk {
	var out []chunk
	for _, w := range ln.words {
		if n := len(out); n > 0 && w.Box.X1-out[n-1].box.X2 <= gap {
			c := &out[n-1]
			c.words = append(c.words, w)
			c.box = union(c.box, w.Box)
			continue
		}
		out = append(out, chunk{box: w.Box, words: []Word{w}})
	}
	return out
}

// columnBands derives column x-ranges from the lines with the most cells,
// then adds bands for cells that fall outside all of them.
func columnBands(chunks []chunk, perRow []int) []span {
	most := 0
	for _, n := range perRow {
		most = max(most, n)
	}

	var spans []span
	for _, c := range chunks {
		if perRow[c.row] == most {
			spans = append(spans, span{c.box.X1, c.box.X2})
		}
	}
	bands := mergeSpans(spans)

	for _, c := range chunks {
		if cs, _ := bandRange(bands, c.box); cs < 0 {
			spans = append(spans, span{c.box.X1, c.box.X2})
			bands = mergeSpans(spans)
		}
	}
	return bands
}

func mergeSpans(spans []span) []span {
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].x1 < sorted[j].x1 })

	var out []span
	for _, s := range sorted {
		if n := len(out); n > 0 && s.x1 < out[n-1].x2 {
			out[n-1].x2 = max(out[n-1].x2, s.x2)
			continue
		}
		out = append(out, s)
	}
	return out
}

// bandRange returns the first and last band overlapping b, or -1, -1.
func bandRange(bands []span, b domain.Rect) (int, int) {
	first, last := -1, -1
	for i, s := range bands {
		if b.X1 < s.x2 && b.X2 > s.x1 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return first, last
}

func nearestBand(bands []span, b domain.Rect) int {
	best, bestDist := 0, -1.0
	mid := (b.X1 + b.X2) / 2
	for i, s := range bands {
		d := max(s.x1-mid, mid-s.x2, 0)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func medianHeight(words []Word) float64 {
	hs := make([]float64, len(words))
	for i, w := range words {
		hs[i] = w.Box.Y2 - w.Box.Y1
	}
	sort.Float64s(hs)
	return hs[len(hs)/2]
}

func centerY(r domain.Rect) float64 {
	return (r.Y1 + r.Y2) / 2
}

func union(a, b domain.Rect) domain.Rect {
	return domain.Rect{
		X1: min(a.X1, b.X1),
		Y1: min(a.Y1, b.Y1),
		X2: max(a.X2, b.X2),
		Y2: max(a.Y2, b.Y2),
	}
}
