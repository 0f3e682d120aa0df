package provider

import (
	"testing"

	"ChatGate/internal/conversation"
)

func fixedHistory() []conversation.Message {
	return []conversation.Message{
		{Role: conversation.RoleUser, Content: "hello"},
		{Role: conversation.RoleAssistant, Content: "hi there"},
		{Role: conversation.RoleUser, Content: "how are you?"},
	}
}

func TestSinglePrompt(t *testing.T) {
	got := singlePrompt(fixedHistory())
	want := "hello hi there how are you?"
	if got != want {
		t.Fatalf("singlePrompt = %q, want %q", got, want)
	}
}

func TestSinglePromptSingleMessage(t *testing.T) {
	got := singlePrompt([]conversation.Message{{Role: conversation.RoleUser, Content: "solo"}})
	if got != "solo" {
		t.Fatalf("singlePrompt = %q, want %q", got, "solo")
	}
}

func TestTurnPrefixPrompt(t *testing.T) {
	got := turnPrefixPrompt(fixedHistory())
	want := "\n\nHuman: hello\n\nAssistant: hi there\n\nHuman: how are you?\n\nAssistant:"
	if got != want {
		t.Fatalf("turnPrefixPrompt = %q, want %q", got, want)
	}
}

func TestTurnPrefixPromptTreatsOtherRolesAsHuman(t *testing.T) {
	history := []conversation.Message{
		{Role: "system", Content: "be terse"},
		{Role: conversation.RoleUser, Content: "hello"},
	}
	got := turnPrefixPrompt(history)
	want := "\n\nHuman: be terse\n\nHuman: hello\n\nAssistant:"
	if got != want {
		t.Fatalf("turnPrefixPrompt = %q, want %q", got, want)
	}
}
