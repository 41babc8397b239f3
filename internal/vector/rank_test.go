package vector

import "testing"

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("InnerProduct = %v, want 32", got)
	}
	if got := InnerProduct([]float32{1, 2}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %v", got)
	}
}

func TestRank(t *testing.T) {
	vectors := [][]float32{
		{0, 1},
		{2, 0},
		{1, 0},
		{2, 0},
	}
	hits := Rank([]float32{1, 0}, vectors, 3)
	want := []int{1, 3, 2}
	if len(hits) != len(want) {
		t.Fatalf("len(hits) = %d, want %d", len(hits), len(want))
	}
	for i, w := range want {
		if hits[i].Position != w {
			t.Errorf("hits[%d].Position = %d, want %d", i, hits[i].Position, w)
		}
	}
}

func TestRank_UsesRawMagnitude(t *testing.T) {
	// Unnormalized: the longer vector wins even though both point the same way.
	hits := Rank([]float32{1, 0}, [][]float32{{1, 0}, {5, 0}}, 1)
	if hits[0].Position != 1 || hits[0].Score != 5 {
		t.Errorf("got %+v", hits[0])
	}
}

func TestRank_Bounds(t *testing.T) {
	vectors := [][]float32{{1}, {2}}
	if got := Rank([]float32{1}, vectors, 0); len(got) != 0 {
		t.Errorf("k=0 should return nothing, got %v", got)
	}
	if got := Rank([]float32{1}, vectors, 10); len(got) != 2 {
		t.Errorf("k > n should return all, got %d", len(got))
	}
	if got := Rank([]float32{1}, nil, 3); got == nil || len(got) != 0 {
		t.Errorf("empty input should return empty non-nil slice, got %v", got)
	}
}
