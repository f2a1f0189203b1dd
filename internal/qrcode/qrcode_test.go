package qrcode

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNG(t *testing.T) {
	png, err := PNG("2@abc,def,ghi", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, err = PNG("", 256)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestDataURI(t *testing.T) {
	uri, err := DataURI("XYZ", 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, pngMagic))
}

func TestDataURIIsDeterministic(t *testing.T) {
	a, err := DataURI("XYZ", 128)
	require.NoError(t, err)
	b, err := DataURI("XYZ", 128)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTerminal(t *testing.T) {
	out, err := Terminal("XYZ")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Greater(t, strings.Count(out, "\n"), 5)

	_, err = Terminal("")
	assert.ErrorIs(t, err, ErrEmptyContent)
}
