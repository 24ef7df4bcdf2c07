package ticket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestRenderProducesPNG(t *testing.T) {
	r := NewRenderer()

	png, err := r.Render("BK-1001.token", 256)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.True(t, bytes.HasPrefix(png, pngMagic), "output should start with the PNG signature")
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewRenderer()

	a, err := r.Render("same-token", 128)
	require.NoError(t, err)
	b, err := r.Render("same-token", 128)
	require.NoError(t, err)

	assert.Equal(t, a, b, "same token and size must render identical bytes")
}

func TestRenderRejectsInvalidSize(t *testing.T) {
	r := NewRenderer()

	_, err := r.Render("token", 0)
	assert.Error(t, err)

	_, err = r.Render("token", -10)
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "ticket-ABC123.png", r.Filename("ABC123"))
}
