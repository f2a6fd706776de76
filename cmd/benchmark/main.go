package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/index"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/memstore"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// Compares the exact flat index with IVF on synthetic clustered vectors:
// recall@k against the exact answer and per-query latency.
func main() {
	n := flag.Int("n", 20000, "number of records")
	dim := flag.Int("dim", domain.DefaultDimension, "vector dimension")
	clusters := flag.Int("clusters", 64, "number of synthetic topic clusters")
	queries := flag.Int("queries", 200, "number of queries")
	topK := flag.Int("k", 10, "results per query")
	lists := flag.Int("lists", 64, "IVF lists")
	probes := flag.String("probes", "1,4,8,16", "comma-separated IVF probe counts")
	filtered := flag.Bool("filter", false, "restrict queries to products (10% of records)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	probeCounts, err := parseInts(*probes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -probes: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	data := generate(rng, *n, *dim, *clusters)
	qs := make([][]float32, *queries)
	for i := range qs {
		qs[i] = jitter(rng, data[rng.IntN(len(data))].Vector, 0.3)
	}

	opts := domain.SearchOptions{K: *topK}
	if *filtered {
		opts.SourceType = domain.SourceProduct
	}

	fmt.Println("VECTOR INDEX BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Records: %d  Dimension: %d  Clusters: %d  Queries: %d  k: %d\n", *n, *dim, *clusters, *queries, *topK)
	if *filtered {
		fmt.Println("Filter: source_type = product")
	}
	fmt.Println()

	ctx := context.Background()
	flat, flatBuild := load(ctx, index.NewFlat(), *dim, data)
	truth, flatLatency := run(ctx, flat, qs, opts)

	fmt.Printf("%-16s %10s %12s %12s %8s\n", "INDEX", "BUILD", "P50", "P99", "RECALL")
	fmt.Println(strings.Repeat("-", 70))
	report("flat", flatBuild, flatLatency, 1)

	for _, p := range probeCounts {
		ivf, build := load(ctx, index.NewIVF(*lists, p), *dim, data)
		got, latency := run(ctx, ivf, qs, opts)

		var recall float64
		for i := range got {
			recall += index.RecallAtK(got[i], truth[i])
		}
		report(fmt.Sprintf("ivf %d/%d", p, *lists), build, latency, recall/float64(len(got)))
	}
}

func generate(rng *rand.Rand, n, dim, clusters int) []domain.NewRecord {
	centers := make([][]float32, clusters)
	for i := range centers {
		centers[i] = randomUnit(rng, dim)
	}
	recs := make([]domain.NewRecord, n)
	for i := range recs {
		st := domain.SourcePageContent
		if i%10 == 0 {
			st = domain.SourceProduct
		}
		recs[i] = domain.NewRecord{
			Chunk: domain.Chunk{
				SourceType: st,
				SourceID:   fmt.Sprintf("doc-%d", i/4),
				Text:       fmt.Sprintf("synthetic chunk %d", i),
				Position:   i % 4,
			},
			Vector: jitter(rng, centers[rng.IntN(clusters)], 0.5),
		}
	}
	return recs
}

func load(ctx context.Context, idx port.VectorIndex, dim int, data []domain.NewRecord) (*memstore.MemoryStore, time.Duration) {
	s := memstore.NewMemoryStore(dim, idx)
	start := time.Now()
	results, err := s.BatchInsert(ctx, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Insert error: %v\n", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "Insert error: %v\n", r.Err)
			os.Exit(1)
		}
	}
	return s, time.Since(start)
}

// run returns the chunk texts hit by each query; record ids differ between
// stores loaded from the same data.
func run(ctx context.Context, s *memstore.MemoryStore, qs [][]float32, opts domain.SearchOptions) ([][]string, []time.Duration) {
	ids := make([][]string, len(qs))
	latency := make([]time.Duration, len(qs))
	for i, q := range qs {
		start := time.Now()
		results, err := s.Search(ctx, q, opts)
		latency[i] = time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		for _, r := range results {
			ids[i] = append(ids[i], r.Record.Chunk.Text)
		}
	}
	return ids, latency
}

func report(name string, build time.Duration, latency []time.Duration, recall float64) {
	sort.Slice(latency, func(i, j int) bool { return latency[i] < latency[j] })
	p50 := latency[len(latency)/2]
	p99 := latency[min(len(latency)-1, len(latency)*99/100)]
	fmt.Printf("%-16s %10s %12s %12s %8.3f\n", name, build.Round(time.Millisecond), p50, p99, recall)
}

func randomUnit(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var sum float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		sum += x * x
	}
	scale := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// jitter returns base plus gaussian noise of the given per-vector scale.
func jitter(rng *rand.Rand, base []float32, scale float64) []float32 {
	noise := randomUnit(rng, len(base))
	out := make([]float32, len(base))
	for i := range base {
		out[i] = base[i] + float32(scale)*noise[i]
	}
	return out
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &v); err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("probe count must be positive, got %d", v)
		}
		out = append(out, v)
	}
	return out, nil
}
