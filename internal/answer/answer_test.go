package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeModel records the prompt it receives and replies with a fixed message.
type fakeModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestUserPrompt(t *testing.T) {
	t.Parallel()

	got := UserPrompt("Hotel: 3 nights, 420 EUR", "How much was the hotel?")
	want := "Context: Hotel: 3 nights, 420 EUR\n\nQuestion: How much was the hotel?\n\nAnswer:"
	if got != want {
		t.Errorf("UserPrompt() = %q, want %q", got, want)
	}
}

func TestChat_Answer(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: "  The hotel cost 420 EUR.\n"}
	c, err := NewChat(fm)
	if err != nil {
		t.Fatalf("NewChat: %v", err)
	}
	got, err := c.Answer(context.Background(), "Hotel: 420 EUR", "Hotel cost?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "The hotel cost 420 EUR." {
		t.Errorf("Answer() = %q", got)
	}
	if len(fm.got) != 2 {
		t.Fatalf("want 2 messages, got %d", len(fm.got))
	}
	if fm.got[0].Role != schema.System || !strings.Contains(fm.got[0].Content, "accounts team") {
		t.Errorf("unexpected system message: %+v", fm.got[0])
	}
	if fm.got[1].Role != schema.User || !strings.HasPrefix(fm.got[1].Content, "Context: Hotel: 420 EUR") {
		t.Errorf("unexpected user message: %+v", fm.got[1])
	}
}

func TestChat_AnswerErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 503")
	c, _ := NewChat(&fakeModel{err: boom})
	if _, err := c.Answer(context.Background(), "ctx", "q"); !errors.Is(err, boom) {
		t.Errorf("want wrapped upstream error, got %v", err)
	}

	c, _ = NewChat(&fakeModel{reply: "   "})
	if _, err := c.Answer(context.Background(), "ctx", "q"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("want ErrEmptyResponse, got %v", err)
	}
}

func TestNewChat_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := NewChat(nil); err == nil {
		t.Error("want error for nil model")
	}
}
