package charts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/projection"
)

// ErrNoData is returned when the series has nothing to draw.
var ErrNoData = errors.New("no data points to chart")

// Renderer draws income series as PNG bar charts for the dashboard.
type Renderer struct {
	width  int
	height int
}

func NewRenderer() *Renderer {
	return &Renderer{width: 900, height: 400}
}

// RenderSeries renders the monthly income series as a PNG bar chart, one bar
// per month bucket.
func (r *Renderer) RenderSeries(series projection.Series) ([]byte, error) {
	if len(series.Cents) == 0 {
		return nil, ErrNoData
	}

	var total int64
	bars := make([]chart.Value, len(series.Cents))
	for i, cents := range series.Cents {
		total += cents
		bars[i] = chart.Value{
			Value: core.Money{Cents: cents}.Euros(),
			Label: series.Labels[i],
		}
	}
	if total == 0 {
		return nil, ErrNoData
	}

	graph := chart.BarChart{
		Width:    r.width,
		Height:   r.height,
		BarWidth: 40,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f€", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
