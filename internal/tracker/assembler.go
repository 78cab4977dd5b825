package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tracklens/internal/store"
)

// PriorInteraction is the compact rendering of an earlier exchange in the
// same conversation, shown to the model as context.
type PriorInteraction struct {
	ID     string
	Input  string
	Output string
}

// PromptContext is the assembled state for one classification call: the full
// taxonomy snapshot for the project and, when the request names a
// conversation, that conversation's id and prior interactions in
// chronological order.
type PromptContext struct {
	Topics         []*store.Topic
	UseCases       []*store.UseCase
	Issues         []*store.Issue
	ConversationID string
	Prior          []PriorInteraction
}

// assemble loads the taxonomy snapshot and resolves the conversation. The
// only mutation it may perform is creating the Conversation row on first
// use of an identifier.
func (s *Service) assemble(ctx context.Context, projectID, orgID, conversationIdentifier string) (*PromptContext, error) {
	topics, err := s.store.ListTopics(ctx, projectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	useCases, err := s.store.ListUseCases(ctx, projectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load use cases: %w", err)
	}
	issues, err := s.store.ListIssues(ctx, projectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}

	pc := &PromptContext{Topics: topics, UseCases: useCases, Issues: issues}

	if conversationIdentifier == "" {
		return pc, nil
	}

	conv, err := s.ensureConversation(ctx, conversationIdentifier, projectID, orgID)
	if err != nil {
		return nil, err
	}
	pc.ConversationID = conv.ID

	prior, err := s.store.InteractionsByConversation(ctx, conv.ID, projectID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load prior interactions: %w", err)
	}
	for _, i := range prior {
		pc.Prior = append(pc.Prior, PriorInteraction{ID: i.ID, Input: i.Input, Output: i.Output})
	}

	return pc, nil
}

// ensureConversation finds or creates the conversation for an identifier.
// Two jobs racing on the same identifier both miss the find; the loser of
// the create hits the uniqueness constraint and re-finds the winner's row.
func (s *Service) ensureConversation(ctx context.Context, identifier, projectID, orgID string) (*store.Conversation, error) {
	conv, err := s.store.ConversationByIdentifier(ctx, identifier, projectID, orgID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = &store.Conversation{
		Identifier:     identifier,
		ProjectID:      projectID,
		OrganizationID: orgID,
	}
	err = s.store.CreateConversation(ctx, conv)
	if err == nil {
		log.Debug().
			Str("conversation_id", conv.ID).
			Str("identifier", identifier).
			Str("project_id", projectID).
			Msg("Created conversation")
		return conv, nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return s.store.ConversationByIdentifier(ctx, identifier, projectID, orgID)
	}
	return nil, fmt.Errorf("create conversation: %w", err)
}
