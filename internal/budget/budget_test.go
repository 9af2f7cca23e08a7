package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.SystemMessage("hello world"), // 4 + Estimate("system")=1 + 2
		schema.UserMessage("hello world"),   // 4 + Estimate("user")=1 + 2
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimTexts(t *testing.T) {
	t.Parallel()

	chunk := strings.Repeat("x", 40) // 10 tokens
	texts := []string{chunk, chunk, chunk, chunk}

	cases := []struct {
		name      string
		maxTokens int
		want      int
	}{
		{"disabled", 0, 4},
		{"everything fits", 1000, 4},
		{"two fit", 21, 2}, // 10 + (1+10)
		{"one short of three", 31, 2},
		{"three fit exactly", 32, 3},
		{"first always kept", 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimTexts(texts, tc.maxTokens)
			if len(got) != tc.want {
				t.Errorf("TrimTexts(_, %d) kept %d, want %d", tc.maxTokens, len(got), tc.want)
			}
		})
	}
}

func Test_TrimTexts_KeepsRelevanceOrder(t *testing.T) {
	t.Parallel()

	texts := []string{"most relevant", "second", strings.Repeat("z", 4000)}
	got := TrimTexts(texts, 20)
	if len(got) != 2 || got[0] != "most relevant" || got[1] != "second" {
		t.Errorf("TrimTexts = %q, want the two leading texts", got)
	}
}

func Test_TrimTexts_Empty(t *testing.T) {
	t.Parallel()
	if got := TrimTexts(nil, 10); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}
