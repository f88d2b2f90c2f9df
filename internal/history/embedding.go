package history

import (
	"math"
	"strings"
)

// EmbeddingDim must match the vector column in the question_history migration
const EmbeddingDim = 128

var keywords = []string{
	"year", "rank", "year_rank", "count", "total", "average", "avg", "sum",
	"max", "min", "top", "highest", "lowest", "best", "worst", "trend",
	"list", "show", "all", "by", "per", "group", "compare", "between",
	"state", "district", "crop", "production", "yield", "area", "rainfall",
	"temperature", "climate", "season", "kharif", "rabi", "rice", "wheat",
	"price", "market", "irrigation", "soil", "monsoon", "drought", "growth",
	"increase", "decrease", "change",
}

// Embed builds a cheap bag-of-features vector for similarity search over
// past questions. Questions sharing vocabulary land close together under
// cosine distance.
func Embed(text string) []float32 {
	embedding := make([]float32, EmbeddingDim)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return embedding
	}

	// 0-36: character frequencies
	chars := "abcdefghijklmnopqrstuvwxyz0123456789 "
	counts := make(map[rune]int)
	for _, r := range text {
		counts[r]++
	}
	total := float32(len([]rune(text)))
	for i, r := range chars {
		embedding[i] = float32(counts[r]) / total
	}

	// 40-: dataset vocabulary
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}
	for i, kw := range keywords {
		if 40+i >= EmbeddingDim-4 {
			break
		}
		if present[kw] {
			embedding[40+i] = 1.0
		}
	}

	// structure
	embedding[EmbeddingDim-4] = float32(len(words)) / 20.0
	embedding[EmbeddingDim-3] = float32(strings.Count(text, "?"))
	embedding[EmbeddingDim-2] = float32(countDigits(text)) / total

	var sumSquares float64
	for _, v := range embedding {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range embedding {
			embedding[i] *= norm
		}
	}

	return embedding
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
