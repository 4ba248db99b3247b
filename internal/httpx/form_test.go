package httpx

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))

	body, contentType, err := FileForm("image", path)
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	part, err := r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image", part.FormName())
	assert.Equal(t, "scan.png", part.FileName())

	data, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	_, err = r.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileForm_MissingFile(t *testing.T) {
	_, _, err := FileForm("image", filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}
