package index

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/port"
)

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// clustered returns n vectors spread around `clusters` random centres.
func clustered(rng *rand.Rand, n, clusters, dim int) map[string][]float32 {
	centres := make([][]float32, clusters)
	for i := range centres {
		centres[i] = randomVector(rng, dim)
	}
	out := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		c := centres[i%clusters]
		v := make([]float32, dim)
		for j := range v {
			v[j] = c[j] + 0.3*float32(rng.NormFloat64())
		}
		out[fmt.Sprintf("v%04d", i)] = v
	}
	return out
}

func topIDs(cands []port.Candidate, k int) []string {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].ID < cands[j].ID
	})
	ids := make([]string, 0, k)
	for i := 0; i < len(cands) && i < k; i++ {
		ids = append(ids, cands[i].ID)
	}
	return ids
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 5}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}

func TestFlatSearchFiltersAndThresholds(t *testing.T) {
	f := NewFlat()
	f.Add("a", []float32{1, 0})
	f.Add("b", []float32{0.9, 0.1})
	f.Add("c", []float32{0, 1})
	f.Add("d", []float32{-1, 0})

	got := f.Search(port.IndexQuery{Vector: []float32{1, 0}, K: 10})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, topIDs(got, 10), "negative similarity is below the zero threshold")

	got = f.Search(port.IndexQuery{
		Vector:   []float32{1, 0},
		K:        10,
		MinScore: -1,
		Accept:   func(id string) bool { return id != "a" },
	})
	assert.Equal(t, []string{"b", "c", "d"}, topIDs(got, 10))

	f.Remove("b")
	f.Remove("missing")
	assert.Equal(t, 3, f.Len())
}

func TestIVFMatchesFlatBeforeTraining(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ivf := NewIVF(8, 2)
	flat := NewFlat()
	for id, v := range clustered(rng, 20, 4, 16) {
		ivf.Add(id, v)
		flat.Add(id, v)
	}
	require.False(t, ivf.Trained())

	q := port.IndexQuery{Vector: randomVector(rng, 16), K: 5, MinScore: -1}
	assert.Equal(t, topIDs(flat.Search(q), 5), topIDs(ivf.Search(q), 5))
}

func TestIVFRecallAgainstFlat(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	data := clustered(rng, 2000, 20, 32)

	ivf := NewIVF(20, 4)
	flat := NewFlat()
	for id, v := range data {
		ivf.Add(id, v)
		flat.Add(id, v)
	}
	require.True(t, ivf.Trained())
	assert.Equal(t, 2000, ivf.Len())

	var total float64
	const queries = 50
	for i := 0; i < queries; i++ {
		q := port.IndexQuery{Vector: data[fmt.Sprintf("v%04d", rng.IntN(2000))], K: 10, MinScore: -1}
		exact := topIDs(flat.Search(q), 10)
		approx := ivf.Search(q)
		assert.Less(t, len(approx), 2000, "IVF should not scan everything")
		total += RecallAtK(topIDs(approx, 10), exact)
	}
	assert.Greater(t, total/queries, 0.9)
}

func TestIVFKeepsProbingWhenFilterUnderfills(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	data := clustered(rng, 400, 8, 16)

	ivf := NewIVF(8, 1)
	for id, v := range data {
		ivf.Add(id, v)
	}
	require.True(t, ivf.Trained())

	// only a handful of ids pass, scattered across lists
	accepted := map[string]bool{"v0001": true, "v0002": true, "v0003": true, "v0004": true, "v0005": true}
	got := ivf.Search(port.IndexQuery{
		Vector:   data["v0000"],
		K:        5,
		MinScore: -1,
		Accept:   func(id string) bool { return accepted[id] },
	})
	assert.ElementsMatch(t, []string{"v0001", "v0002", "v0003", "v0004", "v0005"}, topIDs(got, 5))
}

func TestIVFRemoveAndReAdd(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	ivf := NewIVF(4, 1)
	for id, v := range clustered(rng, 64, 4, 8) {
		ivf.Add(id, v)
	}
	require.True(t, ivf.Trained())

	v := randomVector(rng, 8)
	ivf.Add("v0000", v)
	assert.Equal(t, 64, ivf.Len())

	ivf.Remove("v0000")
	assert.Equal(t, 63, ivf.Len())
	got := ivf.Search(port.IndexQuery{Vector: v, K: 63, MinScore: -1})
	assert.NotContains(t, topIDs(got, 63), "v0000")
}

func TestNew(t *testing.T) {
	idx, err := New("ivf", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, "ivf", idx.Name())

	idx, err = New("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "flat", idx.Name())

	_, err = New("hnsw", 0, 0)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	assert.InDelta(t, 2.0/3.0, PrecisionAtK([]string{"a", "b", "x"}, []string{"a", "b", "c"}), 1e-9)
	assert.InDelta(t, 2.0/3.0, RecallAtK([]string{"a", "b", "x"}, []string{"a", "b", "c"}), 1e-9)
	assert.Equal(t, 0.0, RecallAtK([]string{"a"}, nil))
	assert.Equal(t, 0.0, PrecisionAtK(nil, []string{"a"}))
	assert.InDelta(t, 0.5, ReciprocalRank([]string{"x", "a"}, "a"), 1e-9)
	assert.Equal(t, 0.0, ReciprocalRank([]string{"x"}, "a"))
}
