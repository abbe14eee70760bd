// Package charts renders simple PNG charts for analysis results. The output
// is intentionally plain: charts exist to be pushed onto the live transcript
// stream as base64 images, not to be publication quality.
package charts

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	width   = 640
	height  = 400
	margin  = 48
	maxBars = 24
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColor  = color.RGBA{60, 60, 60, 255}
	barColor   = color.RGBA{66, 133, 244, 255}
	lineColor  = color.RGBA{219, 68, 55, 255}
	textColor  = color.RGBA{20, 20, 20, 255}
)

// Bar renders a vertical bar chart as PNG bytes.
func Bar(title string, labels []string, values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("bar chart needs at least one value")
	}
	if len(values) > maxBars {
		values = values[:maxBars]
		labels = labels[:min(len(labels), maxBars)]
	}

	img := newCanvas(title)
	maxVal := maxOf(values)
	plotW := width - 2*margin
	plotH := height - 2*margin
	barW := plotW / len(values)

	for i, v := range values {
		h := 0
		if maxVal > 0 {
			h = int(float64(plotH) * v / maxVal)
		}
		x0 := margin + i*barW + 2
		x1 := margin + (i+1)*barW - 2
		y0 := height - margin - h
		fill(img, x0, y0, x1, height-margin, barColor)
		if i < len(labels) {
			drawText(img, x0, height-margin+14, truncate(labels[i], barW/7))
		}
	}
	drawAxes(img)
	return encode(img)
}

// Line renders a line chart of the value sequence as PNG bytes.
func Line(title string, values []float64) ([]byte, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("line chart needs at least two values")
	}

	img := newCanvas(title)
	maxVal := maxOf(values)
	minVal := minOf(values)
	span := maxVal - minVal
	if span == 0 {
		span = 1
	}
	plotW := width - 2*margin
	plotH := height - 2*margin

	prevX, prevY := 0, 0
	for i, v := range values {
		x := margin + i*plotW/(len(values)-1)
		y := height - margin - int(float64(plotH)*(v-minVal)/span)
		if i > 0 {
			drawLine(img, prevX, prevY, x, y, lineColor)
		}
		prevX, prevY = x, y
	}
	drawAxes(img)
	return encode(img)
}

func newCanvas(title string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	if title != "" {
		drawText(img, margin, margin/2, title)
	}
	return img
}

func drawAxes(img *image.RGBA) {
	drawLine(img, margin, margin, margin, height-margin, axisColor)
	drawLine(img, margin, height-margin, width-margin, height-margin, axisColor)
}

func drawText(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func fill(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.Set(x, y, c)
		}
	}
}

// drawLine uses integer Bresenham; charts are small enough that this is fine.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
