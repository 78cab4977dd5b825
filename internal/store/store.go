package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a scoped lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a create violates a uniqueness
	// constraint. Find-or-create callers fall back to a re-find.
	ErrDuplicate = errors.New("duplicate row")
)

// Store is the persistence surface for the tracking pipeline. All lookups
// are scoped by (projectID, organizationID); cross-scope reads are rejected
// by the query filters, never by post-hoc checks.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	ProjectByKeyHash(ctx context.Context, keyHash string) (*Project, error)

	EventByName(ctx context.Context, name, projectID, orgID string) (*Event, error)
	CreateEvent(ctx context.Context, e *Event) error

	ConversationByIdentifier(ctx context.Context, identifier, projectID, orgID string) (*Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation) error

	CreateInteraction(ctx context.Context, i *Interaction) error
	InteractionsByConversation(ctx context.Context, conversationID, projectID, orgID string) ([]*Interaction, error)
	CountInteractions(ctx context.Context, projectID, orgID string) (int64, error)

	ListTopics(ctx context.Context, projectID, orgID string) ([]*Topic, error)
	ListUseCases(ctx context.Context, projectID, orgID string) ([]*UseCase, error)
	ListIssues(ctx context.Context, projectID, orgID string) ([]*Issue, error)

	TopicByID(ctx context.Context, id, projectID, orgID string) (*Topic, error)
	UseCaseByID(ctx context.Context, id, projectID, orgID string) (*UseCase, error)
	IssueByID(ctx context.Context, id, projectID, orgID string) (*Issue, error)

	CreateTopic(ctx context.Context, t *Topic) error
	CreateUseCase(ctx context.Context, u *UseCase) error
	CreateIssue(ctx context.Context, i *Issue) error

	LinkTopic(ctx context.Context, interactionID, topicID string) error
	LinkUseCase(ctx context.Context, interactionID, useCaseID string) error
	LinkIssue(ctx context.Context, interactionID, issueID string) error

	InteractionTopicIDs(ctx context.Context, interactionID string) ([]string, error)
	InteractionUseCaseIDs(ctx context.Context, interactionID string) ([]string, error)
	InteractionIssueIDs(ctx context.Context, interactionID string) ([]string, error)

	// WithTx runs fn against a store whose writes commit atomically.
	// Any error from fn rolls back everything written inside it.
	WithTx(ctx context.Context, fn func(Store) error) error
}
