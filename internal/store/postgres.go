package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx so PostgresStore can run
// the same statements inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore implements Store on top of a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO projects (id, name, organization_id, api_key_hash, api_key_prefix)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, p.ID, p.Name, p.OrganizationID, p.APIKeyHash, p.APIKeyPrefix).Scan(&p.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) ProjectByKeyHash(ctx context.Context, keyHash string) (*Project, error) {
	var p Project
	err := s.q.QueryRowContext(ctx, `
        SELECT id, name, organization_id, api_key_hash, api_key_prefix, created_at
        FROM projects WHERE api_key_hash = $1
    `, keyHash).Scan(&p.ID, &p.Name, &p.OrganizationID, &p.APIKeyHash, &p.APIKeyPrefix, &p.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &p, nil
}

func (s *PostgresStore) EventByName(ctx context.Context, name, projectID, orgID string) (*Event, error) {
	var e Event
	err := s.q.QueryRowContext(ctx, `
        SELECT id, name, project_id, organization_id, created_at
        FROM events WHERE name = $1 AND project_id = $2 AND organization_id = $3
    `, name, projectID, orgID).Scan(&e.ID, &e.Name, &e.ProjectID, &e.OrganizationID, &e.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO events (id, name, project_id, organization_id)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at
    `, e.ID, e.Name, e.ProjectID, e.OrganizationID).Scan(&e.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) ConversationByIdentifier(ctx context.Context, identifier, projectID, orgID string) (*Conversation, error) {
	var c Conversation
	err := s.q.QueryRowContext(ctx, `
        SELECT id, identifier, project_id, organization_id, created_at
        FROM conversations WHERE identifier = $1 AND project_id = $2 AND organization_id = $3
    `, identifier, projectID, orgID).Scan(&c.ID, &c.Identifier, &c.ProjectID, &c.OrganizationID, &c.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO conversations (id, identifier, project_id, organization_id)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at
    `, c.ID, c.Identifier, c.ProjectID, c.OrganizationID).Scan(&c.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) CreateInteraction(ctx context.Context, i *Interaction) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	attachments, err := json.Marshal(ensureAttachmentsNotNil(i.Attachments))
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	err = s.q.QueryRowContext(ctx, `
        INSERT INTO interactions (id, input, output, event_id, model, prompt, urls, conversation_id, project_id, organization_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at
    `, i.ID, i.Input, i.Output, i.EventID, i.Model, i.Prompt, attachments,
		nullIfEmpty(i.ConversationID), i.ProjectID, i.OrganizationID).Scan(&i.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) InteractionsByConversation(ctx context.Context, conversationID, projectID, orgID string) ([]*Interaction, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT id, input, output, event_id, model, prompt, urls, coalesce(conversation_id,''), project_id, organization_id, created_at
        FROM interactions
        WHERE conversation_id = $1 AND project_id = $2 AND organization_id = $3
        ORDER BY created_at ASC
    `, conversationID, projectID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		var i Interaction
		var attachments []byte
		if err := rows.Scan(&i.ID, &i.Input, &i.Output, &i.EventID, &i.Model, &i.Prompt, &attachments,
			&i.ConversationID, &i.ProjectID, &i.OrganizationID, &i.CreatedAt); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &i.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshal attachments for interaction %s: %w", i.ID, err)
			}
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountInteractions(ctx context.Context, projectID, orgID string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `
        SELECT count(*) FROM interactions WHERE project_id = $1 AND organization_id = $2
    `, projectID, orgID).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListTopics(ctx context.Context, projectID, orgID string) ([]*Topic, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM topics WHERE project_id = $1 AND organization_id = $2
        ORDER BY created_at ASC
    `, projectID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.ProjectID, &t.OrganizationID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUseCases(ctx context.Context, projectID, orgID string) ([]*UseCase, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM use_cases WHERE project_id = $1 AND organization_id = $2
        ORDER BY created_at ASC
    `, projectID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UseCase
	for rows.Next() {
		var u UseCase
		if err := rows.Scan(&u.ID, &u.Name, &u.Description, &u.ProjectID, &u.OrganizationID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListIssues(ctx context.Context, projectID, orgID string) ([]*Issue, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM issues WHERE project_id = $1 AND organization_id = $2
        ORDER BY created_at ASC
    `, projectID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Issue
	for rows.Next() {
		var i Issue
		if err := rows.Scan(&i.ID, &i.Name, &i.Description, &i.ProjectID, &i.OrganizationID, &i.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopicByID(ctx context.Context, id, projectID, orgID string) (*Topic, error) {
	var t Topic
	err := s.q.QueryRowContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM topics WHERE id = $1 AND project_id = $2 AND organization_id = $3
    `, id, projectID, orgID).Scan(&t.ID, &t.Name, &t.Description, &t.ProjectID, &t.OrganizationID, &t.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &t, nil
}

func (s *PostgresStore) UseCaseByID(ctx context.Context, id, projectID, orgID string) (*UseCase, error) {
	var u UseCase
	err := s.q.QueryRowContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM use_cases WHERE id = $1 AND project_id = $2 AND organization_id = $3
    `, id, projectID, orgID).Scan(&u.ID, &u.Name, &u.Description, &u.ProjectID, &u.OrganizationID, &u.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &u, nil
}

func (s *PostgresStore) IssueByID(ctx context.Context, id, projectID, orgID string) (*Issue, error) {
	var i Issue
	err := s.q.QueryRowContext(ctx, `
        SELECT id, name, description, project_id, organization_id, created_at
        FROM issues WHERE id = $1 AND project_id = $2 AND organization_id = $3
    `, id, projectID, orgID).Scan(&i.ID, &i.Name, &i.Description, &i.ProjectID, &i.OrganizationID, &i.CreatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &i, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t *Topic) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO topics (id, name, description, project_id, organization_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, t.ID, t.Name, t.Description, t.ProjectID, t.OrganizationID).Scan(&t.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) CreateUseCase(ctx context.Context, u *UseCase) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO use_cases (id, name, description, project_id, organization_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, u.ID, u.Name, u.Description, u.ProjectID, u.OrganizationID).Scan(&u.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) CreateIssue(ctx context.Context, i *Issue) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
        INSERT INTO issues (id, name, description, project_id, organization_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, i.ID, i.Name, i.Description, i.ProjectID, i.OrganizationID).Scan(&i.CreatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) LinkTopic(ctx context.Context, interactionID, topicID string) error {
	_, err := s.q.ExecContext(ctx, `
        INSERT INTO interaction_topics (interaction_id, topic_id) VALUES ($1,$2)
    `, interactionID, topicID)
	return mapPQError(err)
}

func (s *PostgresStore) LinkUseCase(ctx context.Context, interactionID, useCaseID string) error {
	_, err := s.q.ExecContext(ctx, `
        INSERT INTO interaction_use_cases (interaction_id, use_case_id) VALUES ($1,$2)
    `, interactionID, useCaseID)
	return mapPQError(err)
}

func (s *PostgresStore) LinkIssue(ctx context.Context, interactionID, issueID string) error {
	_, err := s.q.ExecContext(ctx, `
        INSERT INTO interaction_issues (interaction_id, issue_id) VALUES ($1,$2)
    `, interactionID, issueID)
	return mapPQError(err)
}

func (s *PostgresStore) InteractionTopicIDs(ctx context.Context, interactionID string) ([]string, error) {
	return s.linkedIDs(ctx, `SELECT topic_id FROM interaction_topics WHERE interaction_id = $1`, interactionID)
}

func (s *PostgresStore) InteractionUseCaseIDs(ctx context.Context, interactionID string) ([]string, error) {
	return s.linkedIDs(ctx, `SELECT use_case_id FROM interaction_use_cases WHERE interaction_id = $1`, interactionID)
}

func (s *PostgresStore) InteractionIssueIDs(ctx context.Context, interactionID string) ([]string, error) {
	return s.linkedIDs(ctx, `SELECT issue_id FROM interaction_issues WHERE interaction_id = $1`, interactionID)
}

func (s *PostgresStore) linkedIDs(ctx context.Context, query, interactionID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, interactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func ensureAttachmentsNotNil(a []Attachment) []Attachment {
	if a == nil {
		return []Attachment{}
	}
	return a
}

func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
