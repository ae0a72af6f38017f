package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/rnsim/internal/storage"
)

var palette = []string{"#00ff00", "#00bfff", "#ff8c00", "#ff1493", "#ffd700", "#9370db", "#7fffd4", "#ff4500"}

type bounds struct {
	minX, maxX, minY, maxY float64
}

// pad widens b by 10% on each side; a flat range becomes width 1.
func (b *bounds) pad() {
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
}

func runBounds(run *storage.Run, columns []int) bounds {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for k, t := range run.Times {
		b.minX = math.Min(b.minX, t)
		b.maxX = math.Max(b.maxX, t)
		for _, j := range columns {
			v := run.Values[k][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			b.minY = math.Min(b.minY, v)
			b.maxY = math.Max(b.maxY, v)
		}
	}
	if math.IsInf(b.minY, 1) {
		b.minY, b.maxY = 0, 0
	}
	b.pad()
	return b
}

// TimeCourseSVG draws one polyline per named variable against time. An
// empty names list draws every variable. Non-finite samples break the line.
func TimeCourseSVG(run *storage.Run, names []string, width, height int) (string, error) {
	if len(run.Times) < 2 {
		return "", fmt.Errorf("export: need at least 2 samples, have %d", len(run.Times))
	}
	if len(names) == 0 {
		names = run.Names
	}
	columns := make([]int, len(names))
	for i, name := range names {
		columns[i] = -1
		for j, n := range run.Names {
			if n == name {
				columns[i] = j
				break
			}
		}
		if columns[i] < 0 {
			return "", fmt.Errorf("export: unknown variable %s", name)
		}
	}

	b := runBounds(run, columns)
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, j := range columns {
		color := palette[i%len(palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
		move := true
		for k, t := range run.Times {
			v := run.Values[k][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				move = true
				continue
			}
			x := (t - b.minX) / rangeX * float64(width)
			y := float64(height) - (v-b.minY)/rangeY*float64(height)
			cmd := "L"
			if move {
				cmd = "M"
				move = false
			}
			if k > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(fmt.Sprintf("%s%.1f,%.1f", cmd, x, y))
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16*(i+1), color, names[i]))
	}

	sb.WriteString("</svg>")
	return sb.String(), nil
}
