package vector

import "sort"

// InnerProduct returns the inner product of two vectors. Vectors of different
// lengths score zero.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Rank scores every vector against query by raw inner product and returns the
// top k hits, highest first. Ties keep insertion order. k <= 0 returns no hits;
// k larger than len(vectors) returns all of them.
func Rank(query []float32, vectors [][]float32, k int) []Hit {
	if k <= 0 || len(vectors) == 0 {
		return []Hit{}
	}
	hits := make([]Hit, len(vectors))
	for i, vec := range vectors {
		hits[i] = Hit{Position: i, Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}
