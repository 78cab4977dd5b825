package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the DDL for the tracking tables. The unique indexes on events
// and conversations back the find-or-create fallback: the loser of a
// concurrent create gets a 23505 and re-finds the winner's row.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    api_key_hash    TEXT NOT NULL,
    api_key_prefix  TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_api_key_hash_idx ON projects (api_key_hash);

CREATE TABLE IF NOT EXISTS events (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS events_name_scope_idx
    ON events (name, project_id, organization_id);

CREATE TABLE IF NOT EXISTS conversations (
    id              UUID PRIMARY KEY,
    identifier      TEXT NOT NULL,
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS conversations_identifier_scope_idx
    ON conversations (identifier, project_id, organization_id);

CREATE TABLE IF NOT EXISTS topics (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL,
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS topics_scope_idx ON topics (project_id, organization_id);

CREATE TABLE IF NOT EXISTS use_cases (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL,
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS use_cases_scope_idx ON use_cases (project_id, organization_id);

CREATE TABLE IF NOT EXISTS issues (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL,
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS issues_scope_idx ON issues (project_id, organization_id);

CREATE TABLE IF NOT EXISTS interactions (
    id              UUID PRIMARY KEY,
    input           TEXT NOT NULL,
    output          TEXT NOT NULL,
    event_id        UUID NOT NULL REFERENCES events(id),
    model           TEXT NOT NULL,
    prompt          TEXT NOT NULL,
    urls            JSONB NOT NULL DEFAULT '[]',
    conversation_id UUID REFERENCES conversations(id),
    project_id      UUID NOT NULL REFERENCES projects(id),
    organization_id TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS interactions_conversation_idx
    ON interactions (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS interactions_scope_idx
    ON interactions (project_id, organization_id);

CREATE TABLE IF NOT EXISTS interaction_topics (
    interaction_id UUID NOT NULL REFERENCES interactions(id),
    topic_id       UUID NOT NULL REFERENCES topics(id)
);
CREATE INDEX IF NOT EXISTS interaction_topics_interaction_idx
    ON interaction_topics (interaction_id);

CREATE TABLE IF NOT EXISTS interaction_use_cases (
    interaction_id UUID NOT NULL REFERENCES interactions(id),
    use_case_id    UUID NOT NULL REFERENCES use_cases(id)
);
CREATE INDEX IF NOT EXISTS interaction_use_cases_interaction_idx
    ON interaction_use_cases (interaction_id);

CREATE TABLE IF NOT EXISTS interaction_issues (
    interaction_id UUID NOT NULL REFERENCES interactions(id),
    issue_id       UUID NOT NULL REFERENCES issues(id)
);
CREATE INDEX IF NOT EXISTS interaction_issues_interaction_idx
    ON interaction_issues (interaction_id);
`

// EnsureSchema creates the tracking tables if they do not exist. River's own
// tables are managed separately via its migration tooling.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
