package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklens/internal/llm"
	"github.com/tracklens/internal/metrics"
)

// buildPrompt renders the prior interactions, the current exchange, and the
// three taxonomy listings into a single classification prompt. The exact
// text is stored on the Interaction for auditability.
func buildPrompt(req Request, pc *PromptContext) string {
	var b strings.Builder

	if pc.ConversationID != "" && len(pc.Prior) > 0 {
		b.WriteString("Previous Interactions:\n")
		b.WriteString("----------------------\n")
		for _, p := range pc.Prior {
			fmt.Fprintf(&b, "Interaction: %s\n%s\n%s\n---\n", p.ID, p.Input, p.Output)
		}
		b.WriteString("\n")
	}

	b.WriteString("Current Input:\n")
	b.WriteString("----------------------\n")
	b.WriteString(req.Input)
	b.WriteString("\n\n")

	b.WriteString("Current Output:\n")
	b.WriteString("----------------------\n")
	b.WriteString(req.Output)
	b.WriteString("\n\n")

	b.WriteString("Topics:\n")
	b.WriteString("----------------------\n")
	for _, t := range pc.Topics {
		fmt.Fprintf(&b, "Topic: %s\n%s: %s\n---\n", t.ID, t.Name, t.Description)
	}
	b.WriteString("\n")

	b.WriteString("UseCases:\n")
	b.WriteString("----------------------\n")
	for _, u := range pc.UseCases {
		fmt.Fprintf(&b, "UseCase: %s\n%s: %s\n---\n", u.ID, u.Name, u.Description)
	}
	b.WriteString("\n")

	b.WriteString("Issues:\n")
	b.WriteString("----------------------\n")
	for _, i := range pc.Issues {
		fmt.Fprintf(&b, "Issue: %s\n%s: %s\n---\n", i.ID, i.Name, i.Description)
	}
	b.WriteString("\n")

	b.WriteString("Based on the previous interactions, topics, use cases and issues, " +
		"provide a detailed analysis of the interaction.\n\n")
	b.WriteString("Respond with a single JSON object with exactly these fields:\n")
	b.WriteString(`  "topics": array of matching topic IDs from the listing above` + "\n")
	b.WriteString(`  "useCases": array of matching use case IDs from the listing above` + "\n")
	b.WriteString(`  "issues": array of matching issue IDs from the listing above` + "\n")
	b.WriteString(`  "newTopics": array of {"name", "description"} for topics not in the listing` + "\n")
	b.WriteString(`  "newUseCases": array of {"name", "description"} for use cases not in the listing` + "\n")
	b.WriteString(`  "newIssues": array of {"name", "description"} for issues not in the listing` + "\n")
	b.WriteString(`  "explanation": detailed explanation for the analysis` + "\n")
	b.WriteString("All six arrays are mandatory; use [] when nothing applies.\n")

	return b.String()
}

// classify invokes the language model with the composed prompt, bounded by
// the configured timeout. Any failure, including timeout, surfaces as a
// ClassificationError and the job performs no store mutation.
func (s *Service) classify(ctx context.Context, prompt, model string) (*Analysis, error) {
	if s.classifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.classifyTimeout)
		defer cancel()
	}

	start := time.Now()
	var analysis Analysis
	err := s.llm.GenerateStructured(ctx, prompt, model, &analysis)
	metrics.ClassificationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		stage := "call"
		if errors.Is(err, llm.ErrMalformedResponse) {
			stage = "parse"
		}
		return nil, &ClassificationError{Stage: stage, Err: err}
	}

	analysis.normalize()
	return &analysis, nil
}
