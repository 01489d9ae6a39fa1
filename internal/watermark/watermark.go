// Package watermark derives the tamper-evidence overlay stamped across
// the locked-down attempt view: the student's identity and a timestamp,
// rendered as semi-transparent rotated text and exported as an
// embeddable PNG data URI.
package watermark

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	tileWidth  = 480
	tileHeight = 240
	// Rotation of the stamped text, in radians (about -30 degrees).
	angle = -0.52
	// Text alpha: visible over content without obscuring it.
	textAlpha = 56
)

// Generate renders identity and timestamp as rotated, tiled text and
// returns a PNG data URI. Pure function: no side effects, no network.
func Generate(identity, timestamp string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("identity is required")
	}

	label := identity + " · " + timestamp
	stamp := renderText(label)
	tile := image.NewNRGBA(image.Rect(0, 0, tileWidth, tileHeight))

	// Stamp the rotated label at staggered positions so any crop keeps
	// at least one full occurrence.
	for _, at := range []image.Point{
		{X: 20, Y: 70},
		{X: tileWidth / 2, Y: tileHeight - 30},
	} {
		drawRotated(tile, stamp, at, angle)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		return "", fmt.Errorf("encode watermark: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// renderText rasterizes the label into a tight horizontal strip.
func renderText(label string) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, label).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 4
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 128, G: 128, B: 128, A: textAlpha}),
		Face: face,
		Dot:  fixed.P(2, face.Metrics().Ascent.Ceil()+2),
	}
	d.DrawString(label)
	return img
}

// drawRotated copies src into dst rotated by theta around src's origin,
// anchored at the dst point. Nearest-neighbor is plenty for a watermark.
func drawRotated(dst *image.NRGBA, src *image.NRGBA, at image.Point, theta float64) {
	sin, cos := math.Sin(theta), math.Cos(theta)
	b := src.Bounds()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			dx := at.X + int(math.Round(float64(x)*cos-float64(y)*sin))
			dy := at.Y + int(math.Round(float64(x)*sin+float64(y)*cos))
			if image.Pt(dx, dy).In(dst.Bounds()) {
				dst.SetNRGBA(dx, dy, c)
			}
		}
	}
}

// Cache memoizes the rendered watermark per (identity, minute). The
// overlay is recomputed when the identity first becomes known and then
// left static for the session; re-rendering every tick would be waste.
type Cache struct {
	mu   sync.Mutex
	key  string
	data string
}

// NewCache creates an empty watermark cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the watermark for identity at now's minute, rendering it
// on a key miss.
func (c *Cache) Get(identity string, now time.Time) (string, error) {
	stamp := now.UTC().Format("2006-01-02 15:04")
	key := identity + "|" + stamp

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == key && c.data != "" {
		return c.data, nil
	}

	data, err := Generate(identity, stamp)
	if err != nil {
		return "", err
	}
	c.key = key
	c.data = data
	return data, nil
}
