package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// BenchmarkResult mirrors the fields of cmd/bench results that the graph needs.
type BenchmarkResult struct {
	Workload     string  `json:"workload"`
	Size         int     `json:"size,omitempty"`
	NsPerElement float64 `json:"ns_per_element,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU   int    `json:"num_cpu"`
	CPUModel string `json:"cpu_model,omitempty"`
}

// FullReport represents a complete benchmark session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// sizeStats holds "5%-avg-min", median, and "5%-avg-max" for one queue size.
type sizeStats struct {
	x      float64 // category index plus per-workload offset
	size   float64 // original queue size
	min    float64 // "average of bottom 5%"
	median float64
	max    float64 // "average of top 5%"
}

// statsPoints implements XYer and YErrorer for sizeStats, so we can plot lines + error bars.
type statsPoints []sizeStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].x, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	return s[i].median - s[i].min, s[i].max - s[i].median
}

// categoryTicks implements a categorical X-axis: 0,1,2,... => labels for sizes.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

// workloadPoints maps workload -> queue size -> ns/element samples.
type workloadPoints map[string]map[float64][]float64

// collectPoints groups sized results by CPU count. Concurrent results carry no
// size and are skipped.
func collectPoints(sessions []FullReport) map[int]workloadPoints {
	pointsByCPU := make(map[int]workloadPoints)
	for _, session := range sessions {
		cpus := session.SystemInfo.NumCPU
		if _, ok := pointsByCPU[cpus]; !ok {
			pointsByCPU[cpus] = make(workloadPoints)
		}
		for _, b := range session.Benchmarks {
			if b.Size == 0 || b.NsPerElement <= 0 {
				continue
			}
			wl := pointsByCPU[cpus]
			if _, ok := wl[b.Workload]; !ok {
				wl[b.Workload] = make(map[float64][]float64)
			}
			x := float64(b.Size)
			wl[b.Workload][x] = append(wl[b.Workload][x], b.NsPerElement)
		}
	}
	return pointsByCPU
}

// buildPlot draws one line with error bars per workload.
func buildPlot(cpus int, wl workloadPoints) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("ns/element (5%%-avg-min / Median / 5%%-avg-max) vs. queue size, %d CPU(s)", cpus)
	p.X.Label.Text = "Queue size"
	p.Y.Label.Text = "Time per element (ns) [log scale]"
	p.Y.Scale = plot.LogScale{}

	// Dark theme.
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white

	p.Y.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
		const nTicks = 20.0
		if min <= 0 {
			min = 1e-3
		}
		start := math.Log10(min)
		step := (math.Log10(max) - start) / nTicks
		var ticks []plot.Tick
		for i := 0.0; i <= nTicks; i++ {
			y := math.Pow(10, start+i*step)
			ticks = append(ticks, plot.Tick{Value: y, Label: formatNs(y)})
		}
		return ticks
	})

	p.Add(plotter.NewGrid())

	sizeSet := make(map[float64]struct{})
	for _, bySize := range wl {
		for size := range bySize {
			sizeSet[size] = struct{}{}
		}
	}
	var sizes []float64
	for size := range sizeSet {
		sizes = append(sizes, size)
	}
	sort.Float64s(sizes)

	sizeIndex := make(map[float64]float64)
	var positions []float64
	var labels []string
	for i, size := range sizes {
		sizeIndex[size] = float64(i)
		positions = append(positions, float64(i))
		labels = append(labels, strconv.FormatFloat(size, 'f', -1, 64))
	}
	p.X.Tick.Marker = categoryTicks{positions: positions, labels: labels}

	var names []string
	for name := range wl {
		names = append(names, name)
	}
	sort.Strings(names)

	colors := plotutil.SoftColors
	shapes := []draw.GlyphDrawer{
		draw.CircleGlyph{},
		draw.SquareGlyph{},
		draw.TriangleGlyph{},
		draw.CrossGlyph{},
		draw.PlusGlyph{},
	}

	// Slight offset so each workload is visually separated.
	offsetRange := 0.4
	offsetStep := offsetRange / float64(max(len(names), 1))
	startOffset := -offsetRange/2 + offsetStep/2

	for i, name := range names {
		stats := buildStats(wl[name])
		if len(stats) == 0 {
			continue
		}
		for j := range stats {
			stats[j].x = sizeIndex[stats[j].size] + startOffset + float64(i)*offsetStep
		}
		sort.Slice(stats, func(a, b int) bool { return stats[a].x < stats[b].x })
		sp := statsPoints(stats)

		line, err := plotter.NewLine(sp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating line for %s: %v\n", name, err)
			continue
		}
		line.Color = colors[i%len(colors)]

		points, err := plotter.NewScatter(sp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating scatter for %s: %v\n", name, err)
			continue
		}
		points.GlyphStyle.Radius = vg.Points(5)
		points.Color = colors[i%len(colors)]
		points.Shape = shapes[i%len(shapes)]

		yErrBars, err := plotter.NewYErrorBars(sp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating error bars for %s: %v\n", name, err)
			continue
		}
		yErrBars.Color = colors[i%len(colors)]

		p.Add(line, points, yErrBars)
		p.Legend.Add(name, line, points)
	}
	return p
}

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing benchmark sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	data, err := os.ReadFile(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file: %v\n", err)
		os.Exit(1)
	}

	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}

	for cpus, wl := range collectPoints(sessions) {
		if len(wl) == 0 {
			continue
		}
		p := buildPlot(cpus, wl)
		filename := fmt.Sprintf("%s_%d.png", *outputPrefix, cpus)
		if err := p.Save(12*vg.Inch, 9*vg.Inch, filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving plot for %d CPU(s): %v\n", cpus, err)
			continue
		}
		fmt.Printf("Graph for %d CPU(s) saved to %s\n", cpus, filename)
	}
}

// buildStats computes "average of bottom 5%", median, and "average of top 5%".
func buildStats(bySize map[float64][]float64) []sizeStats {
	var out []sizeStats
	for size, vals := range bySize {
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		out = append(out, sizeStats{
			x:      size,
			size:   size,
			min:    averageOfRange(vals, 0.0, 0.05),
			median: median(vals),
			max:    averageOfRange(vals, 0.95, 1.0),
		})
	}
	return out
}

// averageOfRange returns the average of sortedVals in [startFrac, endFrac] of its length.
// E.g. averageOfRange(vals, 0, 0.05) is the average of the bottom 5%.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := int(float64(n) * startFrac)
	endIndex := int(float64(n) * endFrac)
	if endIndex > n {
		endIndex = n
	}
	if startIndex >= endIndex {
		// fallback to median if 5% slice is too small
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// formatNs nicely formats a nanoseconds value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
