package ngff

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// channelColors maps common stain and fluorophore names to OMERO display
// colors. Lookup is case-insensitive; unknown channels render white.
var channelColors = map[string]string{
	"gfp":     "00FF00",
	"fitc":    "00FF00",
	"rfp":     "FF0000",
	"mcherry": "FF0000",
	"txr":     "FF0000",
	"dapi":    "0000FF",
	"hoechst": "0000FF",
	"cy5":     "FF00FF",
	"cy7":     "FF00FF",
}

// defaultWindow is the rendering window used when no contrast limits are
// supplied, sized for 16-bit camera data.
var defaultWindow = WindowMeta{Start: 0, End: 65535, Min: 0, Max: 65535}

// ChannelDisplay builds OMERO display settings for a channel. The first
// channel of a dataset starts active; window may be nil for the dtype
// default.
func ChannelDisplay(name string, window *WindowMeta, firstChannel bool) ChannelMeta {
	color, ok := channelColors[strings.ToLower(name)]
	if !ok {
		color = "FFFFFF"
	}
	w := defaultWindow
	if window != nil {
		w = *window
	}
	return ChannelMeta{
		Active:      firstChannel,
		Coefficient: 1.0,
		Color:       color,
		Family:      "linear",
		Inverted:    false,
		Label:       name,
		Window:      w,
	}
}

// AutoWindow derives a rendering window from pixel samples, clipping the
// display range to the 1st and 99th percentiles so hot pixels do not wash
// out the contrast. Returns nil when there are too few samples.
func AutoWindow(samples []float64) *WindowMeta {
	if len(samples) < 2 {
		return nil
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return &WindowMeta{
		Start: stat.Quantile(0.01, stat.Empirical, sorted, nil),
		End:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}
}
