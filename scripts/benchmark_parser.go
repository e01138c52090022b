package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Workload    string
	Run         string // "base" or "head"
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult represents a base-vs-head comparison for one benchmark.
type ComparisonResult struct {
	Operation  string
	Workload   string
	BaseNs     float64
	HeadNs     float64
	Speedup    float64
	BaseMem    int64
	HeadMem    int64
	BaseAllocs int64
	HeadAllocs int64
	HeadOnly   bool
}

var (
	baseFile = flag.String(
		"base",
		"",
		"Baseline benchmark output file (required)",
	)
	headFile   = flag.String("head", "", "Current benchmark output file (stdin if not specified)")
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

func main() {
	flag.Parse()

	if *baseFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -base is required")
		flag.Usage()
		os.Exit(1)
	}

	// Read baseline run
	bf, err := os.Open(*baseFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening baseline file: %v\n", err)
		os.Exit(1)
	}
	results := parseBenchmarks(bufio.NewScanner(bf), "base")
	bf.Close()

	// Read current run
	var headF *os.File
	var scanner *bufio.Scanner
	if *headFile != "" {
		f, err := os.Open(*headFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening head file: %v\n", err)
			os.Exit(1)
		}
		headF = f
		scanner = bufio.NewScanner(f)
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}
	results = append(results, parseBenchmarks(scanner, "head")...)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	// Generate comparisons
	comparisons := generateComparisons(results)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Generated %d comparisons\n", len(comparisons))
	}

	// Generate markdown report
	report := generateMarkdownReport(comparisons)

	// Write output
	if *outputFile != "" {
		err := os.WriteFile(*outputFile, []byte(report), 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			if headF != nil {
				headF.Close()
			}
			os.Exit(1)
		}
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
		}
	} else {
		fmt.Fprint(os.Stdout, report)
	}

	// Close head file if opened
	if headF != nil {
		headF.Close()
	}
}

func parseBenchmarks(scanner *bufio.Scanner, run string) []BenchmarkResult {
	var results []BenchmarkResult

	// Regex to parse benchmark output lines
	// Benchmark_Pool_AllocateRelease-8    10000    1245 ns/op    0 B/op    0 allocs/op
	benchmarkRegex := regexp.MustCompile(
		`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+B/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
	)

	for scanner.Scan() {
		line := scanner.Text()

		// Try to parse as JSON (from -json flag)
		var testEvent map[string]any
		if err := json.Unmarshal([]byte(line), &testEvent); err == nil {
			if output, ok := testEvent["Output"].(string); ok {
				line = output
			}
		}

		// Parse benchmark line
		matches := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}

		name := matches[1]
		iterations, _ := strconv.Atoi(matches[2])
		nsPerOp, _ := strconv.ParseFloat(matches[3], 64)

		var bytesPerOp int64
		var allocsPerOp int64

		if matches[4] != "" {
			bytesPerOp, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		if matches[5] != "" {
			allocsPerOp, _ = strconv.ParseInt(matches[5], 10, 64)
		}

		operation, workload := parseBenchmarkName(name)

		results = append(results, BenchmarkResult{
			Name:        name,
			Operation:   operation,
			Workload:    workload,
			Run:         run,
			Iterations:  iterations,
			NsPerOp:     nsPerOp,
			BytesPerOp:  bytesPerOp,
			AllocsPerOp: allocsPerOp,
		})
	}

	return results
}

func parseBenchmarkName(name string) (string, string) {
	// Format: Benchmark<Operation>-<procs>
	// Or: Benchmark<Operation>/<workload>-<procs>

	parts := strings.Split(name, "/")

	operation := strings.TrimPrefix(parts[0], "Benchmark")
	operation = strings.TrimPrefix(operation, "_")

	var workload string
	if len(parts) == 1 {
		// No sub-benchmark: the -N procs suffix sits on the operation.
		if dashIdx := strings.LastIndex(operation, "-"); dashIdx > 0 {
			operation = operation[:dashIdx]
		}
		return operation, ""
	}

	// Workload is the last path element, minus the -N procs suffix.
	lastPart := parts[len(parts)-1]
	if dashIdx := strings.LastIndex(lastPart, "-"); dashIdx > 0 {
		workload = lastPart[:dashIdx]
	} else {
		workload = lastPart
	}

	return operation, workload
}

func generateComparisons(results []BenchmarkResult) []ComparisonResult {
	// Group results by operation and workload
	type key struct {
		operation string
		workload  string
	}

	grouped := make(map[key]map[string]BenchmarkResult)

	for _, result := range results {
		k := key{result.Operation, result.Workload}
		if grouped[k] == nil {
			grouped[k] = make(map[string]BenchmarkResult)
		}
		grouped[k][result.Run] = result
	}

	// Generate comparisons
	var comparisons []ComparisonResult

	for k, runs := range grouped {
		base, hasBase := runs["base"]
		head, hasHead := runs["head"]

		if hasBase && hasHead {
			// Both runs have the benchmark - compare them
			speedup := base.NsPerOp / head.NsPerOp

			comparisons = append(comparisons, ComparisonResult{
				Operation:  k.operation,
				Workload:   k.workload,
				BaseNs:     base.NsPerOp,
				HeadNs:     head.NsPerOp,
				Speedup:    speedup,
				BaseMem:    base.BytesPerOp,
				HeadMem:    head.BytesPerOp,
				BaseAllocs: base.AllocsPerOp,
				HeadAllocs: head.AllocsPerOp,
			})
		} else if hasHead {
			// Benchmark only exists in the current run
			comparisons = append(comparisons, ComparisonResult{
				Operation:  k.operation,
				Workload:   k.workload,
				HeadNs:     head.NsPerOp,
				HeadMem:    head.BytesPerOp,
				HeadAllocs: head.AllocsPerOp,
				HeadOnly:   true,
			})
		}
		// Base-only benchmarks were removed; nothing to compare.
	}

	// Sort by operation then workload
	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Operation != comparisons[j].Operation {
			return comparisons[i].Operation < comparisons[j].Operation
		}
		return comparisons[i].Workload < comparisons[j].Workload
	})

	return comparisons
}

func generateMarkdownReport(comparisons []ComparisonResult) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Benchmark Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	// Summary statistics
	headFaster := 0
	baseFaster := 0
	headOnly := 0
	totalSpeedup := 0.0

	for _, comp := range comparisons {
		if comp.HeadOnly {
			headOnly++
		} else {
			if comp.Speedup > 1.0 {
				headFaster++
			} else if comp.Speedup < 1.0 {
				baseFaster++
			}
			totalSpeedup += comp.Speedup
		}
	}

	comparableCount := len(comparisons) - headOnly
	avgSpeedup := 0.0
	if comparableCount > 0 {
		avgSpeedup = totalSpeedup / float64(comparableCount)
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Total benchmarks**: %d\n", len(comparisons)))
	sb.WriteString(fmt.Sprintf("- **Comparable** (both runs): %d\n", comparableCount))
	if comparableCount > 0 {
		sb.WriteString(
			fmt.Sprintf(
				"  - faster than baseline: %d (%.1f%%)\n",
				headFaster,
				float64(headFaster)/float64(comparableCount)*100,
			),
		)
		sb.WriteString(
			fmt.Sprintf(
				"  - slower than baseline: %d (%.1f%%)\n",
				baseFaster,
				float64(baseFaster)/float64(comparableCount)*100,
			),
		)
		sb.WriteString(fmt.Sprintf("  - Average speedup: **%.2fx**\n", avgSpeedup))
	}
	sb.WriteString(fmt.Sprintf("- **New benchmarks** (head only): %d\n", headOnly))
	sb.WriteString("\n")

	// Detailed results table
	sb.WriteString("## Detailed Results\n\n")
	sb.WriteString(
		"| Operation | Workload | base (ns/op) | head (ns/op) | Speedup | Memory (B/op) | Allocs |\n",
	)
	sb.WriteString(
		"|-----------|----------|--------------|--------------|---------|---------------|--------|\n",
	)

	for _, comp := range comparisons {
		if comp.HeadOnly {
			// New benchmark with no baseline
			sb.WriteString(fmt.Sprintf("| %s | %s | *N/A* | %s | *new* | %s | %s |\n",
				comp.Operation,
				comp.Workload,
				formatNumber(comp.HeadNs),
				formatMemBytes(comp.HeadMem),
				formatNumber(float64(comp.HeadAllocs)),
			))
		} else {
			// Comparison row
			indicator := "✓"
			speedupStyle := "**"
			if comp.Speedup < 1.0 {
				indicator = "✗"
				speedupStyle = ""
			}

			memIndicator := ""
			if comp.HeadMem < comp.BaseMem {
				memIndicator = " ✓"
			} else if comp.HeadMem > comp.BaseMem {
				memIndicator = " ✗"
			}

			allocIndicator := ""
			if comp.HeadAllocs < comp.BaseAllocs {
				allocIndicator = " ✓"
			} else if comp.HeadAllocs > comp.BaseAllocs {
				allocIndicator = " ✗"
			}

			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s%.2fx%s %s | %s vs %s%s | %s vs %s%s |\n",
				comp.Operation,
				comp.Workload,
				formatNumber(comp.BaseNs),
				formatNumber(comp.HeadNs),
				speedupStyle,
				comp.Speedup,
				speedupStyle,
				indicator,
				formatMemBytes(comp.BaseMem),
				formatMemBytes(comp.HeadMem),
				memIndicator,
				formatNumber(float64(comp.BaseAllocs)),
				formatNumber(float64(comp.HeadAllocs)),
				allocIndicator,
			))
		}
	}

	sb.WriteString("\n")

	// Category summaries
	sb.WriteString("## Performance by Category\n\n")

	categories := categorizeOperations(comparisons)
	for _, category := range categoryOrder {
		comps := categories[category]
		if len(comps) == 0 {
			continue
		}

		avgSpeed := 0.0
		count := 0
		for _, comp := range comps {
			if !comp.HeadOnly {
				avgSpeed += comp.Speedup
				count++
			}
		}

		if count > 0 {
			avgSpeed /= float64(count)
			status := "✓"
			if avgSpeed < 1.0 {
				status = "✗"
			}
			sb.WriteString(fmt.Sprintf("- %s **%s**: %.2fx average speedup %s\n",
				status, category, avgSpeed, status))
		} else {
			sb.WriteString(fmt.Sprintf("- **%s**: no baseline to compare\n", category))
		}
	}

	sb.WriteString("\n")

	// Notes
	sb.WriteString("## Notes\n\n")
	sb.WriteString("- **Speedup > 1.0**: head is faster than baseline ✓\n")
	sb.WriteString("- **Speedup < 1.0**: head is slower than baseline ✗\n")
	sb.WriteString("- **Memory comparison**: Lower is better\n")
	sb.WriteString("- **Allocations**: Fewer is better\n")
	sb.WriteString("- **New**: Benchmarks with no baseline result\n")

	return sb.String()
}

var categoryOrder = []string{
	"Frames",
	"Paging",
	"Regions",
	"Dirty Tracking",
	"Image",
	"Other",
	"New Benchmarks",
}

func categorizeOperations(comparisons []ComparisonResult) map[string][]ComparisonResult {
	categories := make(map[string][]ComparisonResult, len(categoryOrder))

	for _, comp := range comparisons {
		op := strings.ToLower(comp.Operation)

		switch {
		case comp.HeadOnly:
			categories["New Benchmarks"] = append(categories["New Benchmarks"], comp)
		case strings.Contains(op, "window") || strings.Contains(op, "region"):
			categories["Regions"] = append(categories["Regions"], comp)
		case strings.Contains(op, "tracker") || strings.Contains(op, "flush") ||
			strings.Contains(op, "coalesce") || strings.Contains(op, "mark"):
			categories["Dirty Tracking"] = append(categories["Dirty Tracking"], comp)
		case strings.Contains(op, "translate") || strings.Contains(op, "fault") ||
			strings.Contains(op, "page") || strings.Contains(op, "space"):
			categories["Paging"] = append(categories["Paging"], comp)
		case strings.Contains(op, "pool") || strings.Contains(op, "frame") ||
			strings.Contains(op, "reserve") || strings.Contains(op, "scan"):
			categories["Frames"] = append(categories["Frames"], comp)
		case strings.Contains(op, "open") || strings.Contains(op, "create") ||
			strings.Contains(op, "close") || strings.Contains(op, "checksum") ||
			strings.Contains(op, "header"):
			categories["Image"] = append(categories["Image"], comp)
		default:
			categories["Other"] = append(categories["Other"], comp)
		}
	}

	return categories
}

func formatNumber(n float64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.2fM", n/1000000)
	} else if n >= 1000 {
		return fmt.Sprintf("%.1fK", n/1000)
	}
	return fmt.Sprintf("%.0f", n)
}

func formatMemBytes(b int64) string {
	if b >= 1024*1024 {
		return fmt.Sprintf("%.2fMB", float64(b)/(1024*1024))
	} else if b >= 1024 {
		return fmt.Sprintf("%.1fKB", float64(b)/1024)
	}
	return fmt.Sprintf("%dB", b)
}
