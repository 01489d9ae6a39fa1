package watermark

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesDecodablePNG(t *testing.T) {
	uri, err := Generate("student@example.com", "2026-03-09 10:00")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, tileWidth, img.Bounds().Dx())
	assert.Equal(t, tileHeight, img.Bounds().Dy())
}

func TestGenerateRequiresIdentity(t *testing.T) {
	_, err := Generate("", "2026-03-09 10:00")
	assert.Error(t, err)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate("student@example.com", "2026-03-09 10:00")
	require.NoError(t, err)
	b, err := Generate("student@example.com", "2026-03-09 10:00")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCacheReusesWithinMinute(t *testing.T) {
	c := NewCache()
	now := time.Date(2026, 3, 9, 10, 0, 5, 0, time.UTC)

	a, err := c.Get("student@example.com", now)
	require.NoError(t, err)
	b, err := c.Get("student@example.com", now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// A new minute re-renders with the new timestamp.
	later, err := c.Get("student@example.com", now.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, a, later)
}

func TestCacheInvalidatesOnIdentityChange(t *testing.T) {
	c := NewCache()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	a, err := c.Get("one@example.com", now)
	require.NoError(t, err)
	b, err := c.Get("two@example.com", now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
