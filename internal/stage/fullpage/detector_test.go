package fullpage

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_WholePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.SavePNG(path, image.NewRGBA(image.Rect(0, 0, 640, 480))))

	det, err := NewDetector().Detect(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, det.Regions, 1)

	r := det.Regions[0]
	assert.Equal(t, domain.Rect{X2: 640, Y2: 480}, r.Box)
	assert.Equal(t, [4]domain.Point{{X: 0, Y: 0}, {X: 640, Y: 0}, {X: 640, Y: 480}, {X: 0, Y: 480}}, r.Corners())
}

func TestDetector_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))

	for _, path := range []string{garbage, filepath.Join(dir, "missing.png")} {
		_, err := NewDetector().Detect(context.Background(), path)
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeDetection))
	}
}

func TestDetector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDetector().Detect(ctx, "unused.png")
	assert.ErrorIs(t, err, context.Canceled)
}
