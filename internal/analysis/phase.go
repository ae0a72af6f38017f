package analysis

import (
	"fmt"
	"strings"
)

type Point struct{ X, Y float64 }

// PhasePortrait holds one variable plotted against another.
type PhasePortrait struct {
	XName, YName string
	Points       []Point
}

// NewPhasePortrait pairs the columns x and y of a recorded time course.
func NewPhasePortrait(names []string, values [][]float64, x, y string) (*PhasePortrait, error) {
	xi, yi := -1, -1
	for i, n := range names {
		switch n {
		case x:
			xi = i
		case y:
			yi = i
		}
	}
	if xi < 0 || yi < 0 {
		return nil, fmt.Errorf("analysis: unknown variable in %s/%s", x, y)
	}
	p := &PhasePortrait{XName: x, YName: y, Points: make([]Point, len(values))}
	for k, row := range values {
		p.Points[k] = Point{X: row[xi], Y: row[yi]}
	}
	return p, nil
}

// ASCII renders the portrait on a width x height character grid with the
// axes drawn where they are visible.
func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s vs %s\n", p.YName, p.XName)
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
