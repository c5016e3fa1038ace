package retrieval

import (
	"math"
	"regexp"
	"strings"
)

const (
	// Candidates scoring at or below this are dropped.
	MinimumScore = 0.3

	maxKeywordBoost = 0.5
)

var (
	invoiceKeywords   = []string{"invoice", "bill", "amount", "total", "due", "payment", "cost", "price", "charge", "fee", "sum"}
	financialKeywords = []string{"$", "€", "£", "usd", "eur", "gbp", "dollar", "euro", "pound"}
	amountQueryTerms  = []string{"amount", "total", "cost", "price", "how much"}

	amountPattern = regexp.MustCompile(`[\$€£]\s*\d+(?:,\d{3})*(?:\.\d{2})?|\d+(?:,\d{3})*(?:\.\d{2})?\s*[\$€£]`)
)

func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// KeywordBoost rewards chunks sharing billing vocabulary with the query,
// since embeddings rank short invoice lines poorly.
func KeywordBoost(query, text string) float64 {
	query = strings.ToLower(query)
	text = strings.ToLower(text)

	boost := 0.0
	for _, kw := range invoiceKeywords {
		if strings.Contains(query, kw) && strings.Contains(text, kw) {
			boost += 0.1
		}
	}
	for _, kw := range financialKeywords {
		if strings.Contains(query, kw) && strings.Contains(text, kw) {
			boost += 0.15
		}
	}
	if strings.Contains(query, "invoice") && strings.Contains(text, "invoice") {
		boost += 0.2
	}
	if amountPattern.MatchString(text) && containsAny(query, amountQueryTerms) {
		boost += 0.25
	}

	return min(boost, maxKeywordBoost)
}

func Score(query, text string, queryVector, chunkVector []float32) float64 {
	return CosineSimilarity(queryVector, chunkVector) + KeywordBoost(query, text)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
