package index

import (
	"math/rand/v2"
	"sort"

	"github.com/vanessasara/full-stack-Devops/internal/port"
)

const (
	// minPerList is the average list size required before the first
	// training run; below it IVF scans everything.
	minPerList  = 8
	kmeansIters = 10
)

// IVF is an inverted-file index: vectors are grouped under their nearest
// k-means centroid and a query scans the lists of its nearest centroids.
// Lists are re-trained each time the index doubles in size.
type IVF struct {
	lists  int
	probes int

	entries   map[string]entry
	centroids [][]float32
	members   []map[string]struct{}
	assign    map[string]int
	trainedAt int
}

func NewIVF(lists, probes int) *IVF {
	if lists <= 0 {
		lists = 1
	}
	if probes <= 0 {
		probes = 1
	}
	if probes > lists {
		probes = lists
	}
	return &IVF{
		lists:   lists,
		probes:  probes,
		entries: make(map[string]entry),
		assign:  make(map[string]int),
	}
}

func (x *IVF) Name() string { return "ivf" }

func (x *IVF) Len() int { return len(x.entries) }

// Trained reports whether centroids exist.
func (x *IVF) Trained() bool { return len(x.centroids) > 0 }

func (x *IVF) Add(id string, vector []float32) {
	if _, exists := x.entries[id]; exists {
		x.Remove(id)
	}
	e := entry{vector: vector, norm: norm(vector)}
	x.entries[id] = e

	switch {
	case !x.Trained() && len(x.entries) >= x.lists*minPerList:
		x.train()
	case x.Trained() && len(x.entries) >= 2*x.trainedAt:
		x.train()
	case x.Trained():
		x.place(id, e)
	}
}

func (x *IVF) Remove(id string) {
	if _, ok := x.entries[id]; !ok {
		return
	}
	delete(x.entries, id)
	if c, ok := x.assign[id]; ok {
		delete(x.members[c], id)
		delete(x.assign, id)
	}
}

func (x *IVF) Search(q port.IndexQuery) []port.Candidate {
	qNorm := norm(q.Vector)
	var out []port.Candidate

	scan := func(id string) {
		if q.Accept != nil && !q.Accept(id) {
			return
		}
		e := x.entries[id]
		score := cosineWithNorms(q.Vector, qNorm, e.vector, e.norm)
		if score < q.MinScore {
			return
		}
		out = append(out, port.Candidate{ID: id, Score: score})
	}

	if !x.Trained() {
		for id := range x.entries {
			scan(id)
		}
		return out
	}

	// Probe the nearest lists, and keep going past probes while the
	// filter leaves fewer than K candidates.
	for i, c := range x.rankCentroids(q.Vector, qNorm) {
		if i >= x.probes && len(out) >= q.K {
			break
		}
		for id := range x.members[c] {
			scan(id)
		}
	}
	return out
}

func (x *IVF) rankCentroids(q []float32, qNorm float64) []int {
	order := make([]int, len(x.centroids))
	scores := make([]float64, len(x.centroids))
	for i, c := range x.centroids {
		order[i] = i
		scores[i] = cosineWithNorms(q, qNorm, c, norm(c))
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

func (x *IVF) place(id string, e entry) {
	best, bestScore := 0, -2.0
	for i, c := range x.centroids {
		s := cosineWithNorms(e.vector, e.norm, c, 1)
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	x.assign[id] = best
	x.members[best][id] = struct{}{}
}

// train runs spherical k-means seeded with k-means++ over every stored
// vector. The seed is fixed so identical contents give identical lists.
func (x *IVF) train() {
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	k := min(x.lists, len(ids))
	rng := rand.New(rand.NewPCG(0x5eed, uint64(len(ids))))
	x.centroids = seedCentroids(ids, x.entries, k, rng)

	x.assign = make(map[string]int, len(ids))
	for iter := 0; iter < kmeansIters; iter++ {
		changed := false
		for _, id := range ids {
			e := x.entries[id]
			best, bestScore := 0, -2.0
			for i, c := range x.centroids {
				if s := cosineWithNorms(e.vector, e.norm, c, 1); s > bestScore {
					best, bestScore = i, s
				}
			}
			if prev, ok := x.assign[id]; !ok || prev != best {
				changed = true
			}
			x.assign[id] = best
		}
		if !changed && iter > 0 {
			break
		}
		x.recomputeCentroids(ids)
	}

	x.members = make([]map[string]struct{}, len(x.centroids))
	for i := range x.members {
		x.members[i] = make(map[string]struct{})
	}
	for id, c := range x.assign {
		x.members[c][id] = struct{}{}
	}
	x.trainedAt = len(ids)
}

func (x *IVF) recomputeCentroids(ids []string) {
	dim := len(x.centroids[0])
	sums := make([][]float64, len(x.centroids))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	counts := make([]int, len(x.centroids))
	for _, id := range ids {
		e := x.entries[id]
		if e.norm == 0 || len(e.vector) != dim {
			continue
		}
		c := x.assign[id]
		counts[c]++
		for j, v := range e.vector {
			sums[c][j] += float64(v) / e.norm
		}
	}
	for i := range x.centroids {
		if counts[i] == 0 {
			continue // keep the previous centroid for an empty list
		}
		c := make([]float32, dim)
		for j := range c {
			c[j] = float32(sums[i][j])
		}
		unit(c)
		x.centroids[i] = c
	}
}

func seedCentroids(ids []string, entries map[string]entry, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := entries[ids[rng.IntN(len(ids))]]
	centroids = append(centroids, unitCopy(first.vector))

	dist := make([]float64, len(ids))
	for len(centroids) < k {
		var total float64
		for i, id := range ids {
			e := entries[id]
			d := 1 - cosineWithNorms(e.vector, e.norm, centroids[len(centroids)-1], 1)
			if len(centroids) == 1 || d < dist[i] {
				dist[i] = d
			}
			total += dist[i] * dist[i]
		}
		if total == 0 {
			// every point coincides with a centroid
			centroids = append(centroids, unitCopy(entries[ids[rng.IntN(len(ids))]].vector))
			continue
		}
		target := rng.Float64() * total
		pick := len(ids) - 1
		for i := range ids {
			target -= dist[i] * dist[i]
			if target <= 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, unitCopy(entries[ids[pick]].vector))
	}
	return centroids
}

func unitCopy(v []float32) []float32 {
	c := make([]float32, len(v))
	copy(c, v)
	unit(c)
	return c
}

func unit(v []float32) {
	n := norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
