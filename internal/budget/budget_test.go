package budget

import (
	"strings"
	"testing"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateAll(t *testing.T) {
	t.Parallel()
	parts := []string{"hello world", "hello world"}
	// Each part: Estimate("hello world") = 11/4 = 2. Two parts: 4.
	if got := EstimateAll(parts); got != 4 {
		t.Errorf("EstimateAll = %d, want 4", got)
	}
}

func Test_TrimChunks_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	chunks := []string{"first chunk", "second chunk"}
	got := TrimChunks(chunks, 10, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 chunks, got %d", len(got))
	}
}

func Test_TrimChunks_DropsLowestRankedFirst(t *testing.T) {
	t.Parallel()
	chunks := []string{
		strings.Repeat("a", 40), // 10 tokens, best hit
		strings.Repeat("b", 40), // 10 tokens
		strings.Repeat("c", 40), // 10 tokens, worst hit
	}
	// reserved 5 + 30 chunk tokens = 35 > 26; dropping the tail chunk gives
	// 5 + 20 = 25 ≤ 26.
	got := TrimChunks(chunks, 5, 26)
	if len(got) != 2 {
		t.Fatalf("want 2 chunks after trim, got %d", len(got))
	}
	if got[0][0] != 'a' || got[1][0] != 'b' {
		t.Error("trim must drop from the tail, keeping the best-ranked chunks")
	}
}

func Test_TrimChunks_KeepsAtLeastOne(t *testing.T) {
	t.Parallel()
	chunks := []string{
		strings.Repeat("x", 4*7000), // ~7000 tokens, alone over budget
		"small",
	}
	got := TrimChunks(chunks, 0, 6000)
	if len(got) != 1 {
		t.Fatalf("want 1 chunk retained, got %d", len(got))
	}
	if got[0][0] != 'x' {
		t.Error("the best-ranked chunk must be the survivor")
	}
}

func Test_TrimChunks_EmptyInput(t *testing.T) {
	t.Parallel()
	if got := TrimChunks(nil, 0, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}
