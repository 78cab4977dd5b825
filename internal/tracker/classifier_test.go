package tracker

import (
	"strings"
	"testing"

	"github.com/tracklens/internal/store"
)

func TestBuildPromptListsTaxonomyWithIDs(t *testing.T) {
	pc := &PromptContext{
		Topics:   []*store.Topic{{ID: "t-1", Name: "Auth", Description: "Login flows"}},
		UseCases: []*store.UseCase{{ID: "u-1", Name: "Onboarding", Description: "First-run experience"}},
		Issues:   []*store.Issue{{ID: "i-1", Name: "Latency", Description: "Slow responses"}},
	}
	req := Request{Input: "hello", Output: "world", Event: "chat", Model: "gpt-4o"}

	prompt := buildPrompt(req, pc)

	for _, want := range []string{
		"Topic: t-1", "Auth: Login flows",
		"UseCase: u-1", "Onboarding: First-run experience",
		"Issue: i-1", "Latency: Slow responses",
		"Current Input:", "hello",
		"Current Output:", "world",
		`"newTopics"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptOmitsPriorSectionWithoutConversation(t *testing.T) {
	prompt := buildPrompt(Request{Input: "a", Output: "b"}, &PromptContext{})
	if strings.Contains(prompt, "Previous Interactions") {
		t.Error("prompt should not contain prior section without a conversation")
	}
}

func TestBuildPromptRendersPriorInteractionsInOrder(t *testing.T) {
	pc := &PromptContext{
		ConversationID: "c-1",
		Prior: []PriorInteraction{
			{ID: "i-1", Input: "first question", Output: "first answer"},
			{ID: "i-2", Input: "second question", Output: "second answer"},
		},
	}
	prompt := buildPrompt(Request{Input: "third", Output: "answer"}, pc)

	firstIdx := strings.Index(prompt, "first question")
	secondIdx := strings.Index(prompt, "second question")
	if firstIdx < 0 || secondIdx < 0 {
		t.Fatal("prior interactions missing from prompt")
	}
	if firstIdx > secondIdx {
		t.Error("prior interactions out of chronological order")
	}
}

func TestAnalysisNormalizeFillsNilArrays(t *testing.T) {
	var a Analysis
	a.normalize()
	if a.Topics == nil || a.UseCases == nil || a.Issues == nil ||
		a.NewTopics == nil || a.NewUseCases == nil || a.NewIssues == nil {
		t.Error("normalize must replace nil arrays with empty ones")
	}
}
