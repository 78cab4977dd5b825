package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tracklens/internal/metrics"
	"github.com/tracklens/internal/store"
)

// ensureEvent finds or creates the Event for a name within scope. Runs
// before the reconcile transaction: a unique-violation fallback cannot be
// retried inside an already-aborted Postgres transaction.
func ensureEvent(ctx context.Context, st store.Store, name, projectID, orgID string) (*store.Event, error) {
	event, err := st.EventByName(ctx, name, projectID, orgID)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find event: %w", err)
	}

	event = &store.Event{Name: name, ProjectID: projectID, OrganizationID: orgID}
	err = st.CreateEvent(ctx, event)
	if err == nil {
		return event, nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return st.EventByName(ctx, name, projectID, orgID)
	}
	return nil, fmt.Errorf("create event: %w", err)
}

// reconcile persists the classification result: the Interaction row, rows
// for every newly-proposed taxonomy entry, and link rows for both proposed
// and matched entries. Matched IDs are re-fetched scoped to the project; an
// ID that does not resolve is skipped silently rather than trusted. Runs
// inside a single store transaction so a mid-sequence failure leaves no
// partially-linked Interaction behind.
func reconcile(ctx context.Context, st store.Store, projectID, orgID string, req Request, analysis *Analysis, prompt, eventID, conversationID string) (*store.Interaction, error) {
	interaction := &store.Interaction{
		Input:          req.Input,
		Output:         req.Output,
		EventID:        eventID,
		Model:          req.Model,
		Prompt:         prompt,
		Attachments:    req.URLs,
		ConversationID: conversationID,
		ProjectID:      projectID,
		OrganizationID: orgID,
	}
	if err := st.CreateInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("create interaction: %w", err)
	}

	// Proposed entries are created unconditionally; duplicate proposals
	// across jobs are accepted as taxonomy noise.
	for _, p := range analysis.NewTopics {
		topic := &store.Topic{Name: p.Name, Description: p.Description, ProjectID: projectID, OrganizationID: orgID}
		if err := st.CreateTopic(ctx, topic); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", p.Name, err)
		}
		if err := st.LinkTopic(ctx, interaction.ID, topic.ID); err != nil {
			return nil, fmt.Errorf("link topic %q: %w", p.Name, err)
		}
		metrics.TaxonomyEntriesCreated.WithLabelValues("topic").Inc()
	}
	for _, p := range analysis.NewUseCases {
		useCase := &store.UseCase{Name: p.Name, Description: p.Description, ProjectID: projectID, OrganizationID: orgID}
		if err := st.CreateUseCase(ctx, useCase); err != nil {
			return nil, fmt.Errorf("create use case %q: %w", p.Name, err)
		}
		if err := st.LinkUseCase(ctx, interaction.ID, useCase.ID); err != nil {
			return nil, fmt.Errorf("link use case %q: %w", p.Name, err)
		}
		metrics.TaxonomyEntriesCreated.WithLabelValues("use_case").Inc()
	}
	for _, p := range analysis.NewIssues {
		issue := &store.Issue{Name: p.Name, Description: p.Description, ProjectID: projectID, OrganizationID: orgID}
		if err := st.CreateIssue(ctx, issue); err != nil {
			return nil, fmt.Errorf("create issue %q: %w", p.Name, err)
		}
		if err := st.LinkIssue(ctx, interaction.ID, issue.ID); err != nil {
			return nil, fmt.Errorf("link issue %q: %w", p.Name, err)
		}
		metrics.TaxonomyEntriesCreated.WithLabelValues("issue").Inc()
	}

	for _, id := range analysis.Topics {
		topic, err := st.TopicByID(ctx, id, projectID, orgID)
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("topic_id", id).Str("project_id", projectID).Msg("Dropping unresolved topic id from analysis")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch topic %s: %w", id, err)
		}
		if err := st.LinkTopic(ctx, interaction.ID, topic.ID); err != nil {
			return nil, fmt.Errorf("link topic %s: %w", id, err)
		}
	}
	for _, id := range analysis.UseCases {
		useCase, err := st.UseCaseByID(ctx, id, projectID, orgID)
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("use_case_id", id).Str("project_id", projectID).Msg("Dropping unresolved use case id from analysis")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch use case %s: %w", id, err)
		}
		if err := st.LinkUseCase(ctx, interaction.ID, useCase.ID); err != nil {
			return nil, fmt.Errorf("link use case %s: %w", id, err)
		}
	}
	for _, id := range analysis.Issues {
		issue, err := st.IssueByID(ctx, id, projectID, orgID)
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("issue_id", id).Str("project_id", projectID).Msg("Dropping unresolved issue id from analysis")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch issue %s: %w", id, err)
		}
		if err := st.LinkIssue(ctx, interaction.ID, issue.ID); err != nil {
			return nil, fmt.Errorf("link issue %s: %w", id, err)
		}
	}

	return interaction, nil
}
