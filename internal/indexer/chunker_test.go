package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunker_Chunk(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		text    string
		lengths []int
	}{
		{"empty", 500, "", nil},
		{"shorter than window", 500, "hello", []int{5}},
		{"exact multiple", 3, "abcdef", []int{3, 3}},
		{"1200 chars", 500, strings.Repeat("x", 1200), []int{500, 500, 200}},
		{"multibyte code points", 2, "héllo wörld", []int{2, 2, 2, 2, 2, 1}},
		{"whitespace kept", 4, "  a \n\t b ", []int{4, 4, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := NewChunker(tt.size).Chunk(tt.text, "doc.txt")
			if len(chunks) != len(tt.lengths) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.lengths))
			}
			var joined strings.Builder
			for i, ch := range chunks {
				if n := utf8.RuneCountInString(ch.Text); n != tt.lengths[i] {
					t.Errorf("chunk %d has %d code points, want %d", i, n, tt.lengths[i])
				}
				if ch.Source != "doc.txt" {
					t.Errorf("chunk %d source = %q", i, ch.Source)
				}
				joined.WriteString(ch.Text)
			}
			if joined.String() != tt.text {
				t.Errorf("reconstructed %q, want %q", joined.String(), tt.text)
			}
		})
	}
}

func TestChunker_count(t *testing.T) {
	c := NewChunker(7)
	for l := 0; l <= 50; l++ {
		want := (l + 6) / 7
		if got := len(c.Chunk(strings.Repeat("é", l), "s")); got != want {
			t.Errorf("length %d: got %d chunks, want %d", l, got, want)
		}
	}
}

func TestNewChunker_defaultSize(t *testing.T) {
	if got := NewChunker(0).Size(); got != DefaultChunkSize {
		t.Errorf("Size() = %d, want %d", got, DefaultChunkSize)
	}
	if got := NewChunker(-3).Size(); got != DefaultChunkSize {
		t.Errorf("Size() = %d, want %d", got, DefaultChunkSize)
	}
}

func BenchmarkChunk(b *testing.B) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 2000)
	c := NewChunker(DefaultChunkSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(text, "bench.txt")
	}
}
