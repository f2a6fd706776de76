package index

import (
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

type entry struct {
	vector []float32
	norm   float64
}

// Flat is exact brute-force cosine search over every stored vector.
type Flat struct {
	entries map[string]entry
}

func NewFlat() *Flat {
	return &Flat{entries: make(map[string]entry)}
}

func (f *Flat) Name() string { return "flat" }

func (f *Flat) Add(id string, vector []float32) {
	f.entries[id] = entry{vector: vector, norm: norm(vector)}
}

func (f *Flat) Remove(id string) {
	delete(f.entries, id)
}

func (f *Flat) Len() int {
	return len(f.entries)
}

func (f *Flat) Search(q port.IndexQuery) []port.Candidate {
	qNorm := norm(q.Vector)
	var out []port.Candidate
	for id, e := range f.entries {
		if q.Accept != nil && !q.Accept(id) {
			continue
		}
		score := cosineWithNorms(q.Vector, qNorm, e.vector, e.norm)
		if score < q.MinScore {
			continue
		}
		out = append(out, port.Candidate{ID: id, Score: score})
	}
	return out
}
