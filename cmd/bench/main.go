package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoStrQueue/internal/testbench"
	"github.com/i5heu/GoStrQueue/pkg/config"
	"github.com/i5heu/GoStrQueue/pkg/lockedqueue"
	"github.com/i5heu/GoStrQueue/pkg/strqueue"
)

// BenchmarkResult holds results for one measured run. Sized runs fill Size
// and NsPerElement; concurrent runs fill the producer/consumer fields.
type BenchmarkResult struct {
	Workload            string  `json:"workload"`
	Size                int     `json:"size,omitempty"`
	NsPerElement        float64 `json:"ns_per_element,omitempty"`
	NumProducers        int     `json:"num_producers,omitempty"`
	NumConsumers        int     `json:"num_consumers,omitempty"`
	NumMessages         int64   `json:"num_messages,omitempty"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed,omitempty"` // consumed count
	ActualElapsed       string  `json:"actual_elapsed"`
	Throughput          float64 `json:"throughput_msgs_sec,omitempty"`
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU      int     `json:"num_cpu"`
	TrueCPU     int     `json:"true_cpu,omitempty"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH      string  `json:"go_arch"`
	TotalMemory uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete benchmark session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

type valueOrder int

const (
	orderRandom valueOrder = iota
	orderAscending
	orderDescending
)

// Workload is one single-threaded operation measured against a strqueue.Queue.
type Workload struct {
	name        string
	description string
	features    []string
	prefill     bool
	order       valueOrder
	run         func(q *strqueue.Queue, size int, gen func(int) []byte)
}

// getWorkloads enumerates the structural operations we measure.
func getWorkloads() []Workload {
	return []Workload{
		{
			name:        "InsertHead",
			description: "Insert size copied values at the head of an empty queue.",
			features:    []string{"Insert", "LIFO"},
			run: func(q *strqueue.Queue, size int, gen func(int) []byte) {
				for i := 0; i < size; i++ {
					q.InsertHead(gen(i))
				}
			},
		},
		{
			name:        "InsertTail",
			description: "Insert size copied values at the tail of an empty queue.",
			features:    []string{"Insert", "FIFO"},
			run: func(q *strqueue.Queue, size int, gen func(int) []byte) {
				for i := 0; i < size; i++ {
					q.InsertTail(gen(i))
				}
			},
		},
		{
			name:        "RemoveHead",
			description: "Drain a full queue through a 64-byte buffer.",
			features:    []string{"Remove", "FIFO"},
			prefill:     true,
			run: func(q *strqueue.Queue, size int, _ func(int) []byte) {
				buf := make([]byte, 64)
				for q.RemoveHead(buf) {
				}
			},
		},
		{
			name:        "Reverse",
			description: "Reverse a full queue in place.",
			features:    []string{"Reverse", "In-Place"},
			prefill:     true,
			run: func(q *strqueue.Queue, _ int, _ func(int) []byte) {
				q.Reverse()
			},
		},
		{
			name:        "SortRandom",
			description: "Merge sort a queue of random values.",
			features:    []string{"Sort", "Stable", "In-Place"},
			prefill:     true,
			run:         func(q *strqueue.Queue, _ int, _ func(int) []byte) { q.Sort() },
		},
		{
			name:        "SortAscending",
			description: "Merge sort a queue that is already sorted.",
			features:    []string{"Sort", "Stable", "In-Place"},
			prefill:     true,
			order:       orderAscending,
			run:         func(q *strqueue.Queue, _ int, _ func(int) []byte) { q.Sort() },
		},
		{
			name:        "SortDescending",
			description: "Merge sort a queue sorted in reverse.",
			features:    []string{"Sort", "Stable", "In-Place"},
			prefill:     true,
			order:       orderDescending,
			run:         func(q *strqueue.Queue, _ int, _ func(int) []byte) { q.Sort() },
		},
	}
}

// generateValues returns size deterministic printable values of the given length.
func generateValues(size, length int, seed uint64, order valueOrder) [][]byte {
	rng := rand.New(rand.NewPCG(seed, uint64(size)))
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	vals := make([][]byte, size)
	for i := range vals {
		v := make([]byte, length)
		for j := range v {
			v[j] = alphabet[rng.IntN(len(alphabet))]
		}
		vals[i] = v
	}
	switch order {
	case orderAscending:
		sort.Slice(vals, func(i, j int) bool { return string(vals[i]) < string(vals[j]) })
	case orderDescending:
		sort.Slice(vals, func(i, j int) bool { return string(vals[i]) > string(vals[j]) })
	}
	return vals
}

// runWorkload measures w once at the given size.
func runWorkload(w Workload, size int, cfg config.Config) (BenchmarkResult, error) {
	vals := generateValues(size, cfg.ValueLength, cfg.Seed, w.order)
	q, err := strqueue.New()
	if err != nil {
		return BenchmarkResult{}, err
	}
	elapsed, err := testbench.RunSizedTest(q,
		testbench.SizedConfig{Size: size, Prefill: w.prefill},
		func(i int) []byte { return vals[i] },
		w.run,
	)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", w.name, err)
	}
	return BenchmarkResult{
		Workload:      w.name,
		Size:          size,
		NsPerElement:  float64(elapsed.Nanoseconds()) / float64(size),
		ActualElapsed: elapsed.String(),
		Timestamp:     time.Now().Unix(),
		GoVersion:     runtime.Version(),
	}, nil
}

// runConcurrent measures the lock-serialized queue with producers and consumers.
func runConcurrent(cc testbench.Config, cfg config.Config) (BenchmarkResult, error) {
	lq, err := lockedqueue.New(cfg.Capacity)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer lq.Close()

	produced, consumed, actual := testbench.RunTimedTest[string](lq, cc, cfg.TestDuration, strconv.Itoa)
	return BenchmarkResult{
		Workload:            "LockedQueue",
		NumProducers:        cc.NumProducers,
		NumConsumers:        cc.NumConsumers,
		NumMessages:         produced,
		NumMessagesConsumed: consumed,
		ActualElapsed:       actual.String(),
		Throughput:          float64(consumed) / actual.Seconds(),
		Timestamp:           time.Now().Unix(),
		GoVersion:           runtime.Version(),
	}, nil
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table.
func outputMarkdownTable(jsonFile string) error {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		return fmt.Errorf("reading JSON file %q: %w", jsonFile, err)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("unmarshalling JSON: %w", err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions found in %s", jsonFile)
	}
	fmt.Print(markdownTable(sessions[len(sessions)-1]))
	return nil
}

// markdownTable averages ns/element per workload and size of one session.
func markdownTable(session FullReport) string {
	featureMap := make(map[string]string)
	for _, w := range getWorkloads() {
		featureMap[w.name] = strings.Join(w.features, ", ")
	}

	type key struct {
		workload string
		size     int
	}
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, b := range session.Benchmarks {
		if b.Size == 0 {
			continue
		}
		k := key{b.Workload, b.Size}
		sums[k] += b.NsPerElement
		counts[k]++
	}
	keys := make([]key, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].workload != keys[j].workload {
			return keys[i].workload < keys[j].workload
		}
		return keys[i].size < keys[j].size
	})

	var sb strings.Builder
	sb.WriteString("## Last Session Benchmark Summary\n\n")
	sb.WriteString("| Workload         | Features                    | Size       | ns/element |\n")
	sb.WriteString("|------------------|-----------------------------|------------|------------|\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "| %-16s | %-27s | %10d | %10.1f |\n",
			k.workload, featureMap[k.workload], k.size, sums[k]/float64(counts[k]))
	}
	return sb.String()
}

func main() {
	configPath := flag.String("config", "", "YAML benchmark config; defaults are used when empty")
	testIterations := flag.Int("iter", 0, "If non-zero, overrides the configured iterations per size")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, sets GOMAXPROCS (capped at runtime.NumCPU())")
	concurrent := flag.Bool("concurrent", false, "Also run the LockedQueue producer/consumer benchmark")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	markdownTableFlag := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	flag.Parse()

	if *markdownTableFlag {
		if err := outputMarkdownTable(*jsonFileForMarkdown); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
	}
	if *testIterations > 0 {
		cfg.Iterations = *testIterations
	}

	trueCpuCount := runtime.NumCPU()
	if *cpuMaxFlag > 0 {
		runtime.GOMAXPROCS(min(*cpuMaxFlag, trueCpuCount))
	}
	sysInfo := gatherSystemInfo()
	sysInfo.NumCPU = runtime.GOMAXPROCS(0)
	sysInfo.TrueCPU = trueCpuCount

	workloads := getWorkloads()
	totalTests := len(cfg.Sizes) * cfg.Iterations * len(workloads)
	if *concurrent {
		totalTests += len(cfg.Concurrency) * cfg.Iterations
	}

	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("benchmarking"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		)
	}
	step := func() {
		if bar != nil {
			bar.Add(1)
		}
	}

	var results []BenchmarkResult
	for _, size := range cfg.Sizes {
		fmt.Printf("  [Size: %d]\n", size)
		for iteration := 1; iteration <= cfg.Iterations; iteration++ {
			fmt.Printf("    iteration %d/%d\n", iteration, cfg.Iterations)
			for _, w := range workloads {
				runtime.GC()
				result, err := runWorkload(w, size, cfg)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				fmt.Printf("    %s => %.1f ns/element, took=%s\n", w.name, result.NsPerElement, result.ActualElapsed)
				results = append(results, result)
				step()
			}
		}
	}

	if *concurrent {
		for _, cc := range cfg.Concurrency {
			fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cc.NumProducers, cc.NumConsumers)
			for iteration := 1; iteration <= cfg.Iterations; iteration++ {
				runtime.GC()
				result, err := runConcurrent(cc, cfg)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				fmt.Printf("    LockedQueue => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%s\n",
					result.NumMessages, result.NumMessagesConsumed, result.Throughput, result.ActualElapsed)
				results = append(results, result)
				step()
			}
		}
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	report := FullReport{
		SessionTime: time.Now().Format(time.RFC3339),
		SystemInfo:  sysInfo,
		Benchmarks:  results,
	}

	if *jsonExport {
		const filename = "test-results.json"
		if err := appendReport(filename, report); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// appendReport adds report to the sessions already stored in filename.
func appendReport(filename string, report FullReport) error {
	var previous []FullReport
	if data, err := os.ReadFile(filename); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &previous); err != nil {
			return fmt.Errorf("existing %s is not a session list: %w", filename, err)
		}
	}
	data, err := json.MarshalIndent(append(previous, report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      runtime.NumCPU(),
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      runtime.GOARCH,
		TotalMemory: totalMemory,
	}
}
