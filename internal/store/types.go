package store

import "time"

// AttachmentType enumerates the supported attachment kinds.
type AttachmentType string

const (
	AttachmentImage   AttachmentType = "image"
	AttachmentVideo   AttachmentType = "video"
	AttachmentWebsite AttachmentType = "website"
)

// Attachment is a media reference submitted alongside an interaction.
type Attachment struct {
	Name     string         `json:"name"`
	FileType AttachmentType `json:"file_type"`
	Type     string         `json:"type,omitempty"`
	Src      string         `json:"src"`
}

// Project owns all tracked data for one API key. The raw key is never
// stored; only its SHA-256 hash and a display prefix.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OrganizationID string    `json:"organization_id"`
	APIKeyHash     string    `json:"-"`
	APIKeyPrefix   string    `json:"api_key_prefix"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is a caller-defined label, lazily created on first use within a project.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation threads multiple interactions under a caller-supplied identifier.
type Conversation struct {
	ID             string    `json:"id"`
	Identifier     string    `json:"identifier"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Interaction is one recorded input/output exchange. Immutable once created.
// Prompt holds the exact text sent to the classifier for auditability.
type Interaction struct {
	ID             string       `json:"id"`
	Input          string       `json:"input"`
	Output         string       `json:"output"`
	EventID        string       `json:"event_id"`
	Model          string       `json:"model"`
	Prompt         string       `json:"prompt"`
	Attachments    []Attachment `json:"urls"`
	ConversationID string       `json:"conversation_id,omitempty"`
	ProjectID      string       `json:"project_id"`
	OrganizationID string       `json:"organization_id"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Topic is a taxonomy entry. Growth is append-only; name and description
// are never updated after creation.
type Topic struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// UseCase is a taxonomy entry describing how the product is being used.
type UseCase struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Issue is a taxonomy entry describing a problem surfaced by an interaction.
type Issue struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}
