// Package budget provides token budget estimation and context trimming for
// the answer engine. Because the engine supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateAll returns the estimated total token count for a slice of strings.
func EstimateAll(parts []string) int {
	total := 0
	for _, p := range parts {
		total += Estimate(p)
	}
	return total
}

// TrimChunks drops chunks from the end of the slice until the estimated
// token count of reserved + chunks fits within maxTokens. Chunks arrive in
// retrieval-score order, so the least relevant ones are dropped first.
// reserved is the token estimate of everything else in the prompt (the
// question and the prompt scaffolding).
//
// At least one chunk is always kept when the input is non-empty, even if it
// alone exceeds the budget, so the engine never silently discards all of its
// grounding.
func TrimChunks(chunks []string, reserved, maxTokens int) []string {
	for len(chunks) > 1 {
		if reserved+EstimateAll(chunks) <= maxTokens {
			break
		}
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}
