package tracker

import (
	"fmt"

	"github.com/tracklens/internal/store"
)

// Request is the data portion of one queued tracking job. It originates
// from the ingestion endpoint but is re-validated here: queue payloads are
// treated as untrusted input.
type Request struct {
	Input          string             `json:"input"`
	Output         string             `json:"output"`
	Event          string             `json:"event"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Model          string             `json:"model"`
	URLs           []store.Attachment `json:"urls,omitempty"`
}

// Validate rejects payloads the pipeline cannot process.
func (r Request) Validate() error {
	if r.Event == "" {
		return fmt.Errorf("event is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	for i, u := range r.URLs {
		switch u.FileType {
		case store.AttachmentImage, store.AttachmentVideo, store.AttachmentWebsite:
		default:
			return fmt.Errorf("urls[%d]: unsupported file_type %q", i, u.FileType)
		}
		if u.Src == "" {
			return fmt.Errorf("urls[%d]: src is required", i)
		}
	}
	return nil
}

// Proposal is a new taxonomy entry suggested by the model.
type Proposal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Analysis is the structured classification result. The three ID arrays are
// candidate matches against the taxonomy snapshot the model was shown; they
// are re-validated against the store before any link is written.
type Analysis struct {
	Topics      []string   `json:"topics"`
	UseCases    []string   `json:"useCases"`
	Issues      []string   `json:"issues"`
	NewTopics   []Proposal `json:"newTopics"`
	NewUseCases []Proposal `json:"newUseCases"`
	NewIssues   []Proposal `json:"newIssues"`
	Explanation string     `json:"explanation"`
}

// normalize replaces nil arrays with empty ones so downstream loops never
// distinguish a missing field from an empty one.
func (a *Analysis) normalize() {
	if a.Topics == nil {
		a.Topics = []string{}
	}
	if a.UseCases == nil {
		a.UseCases = []string{}
	}
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if a.NewTopics == nil {
		a.NewTopics = []Proposal{}
	}
	if a.NewUseCases == nil {
		a.NewUseCases = []Proposal{}
	}
	if a.NewIssues == nil {
		a.NewIssues = []Proposal{}
	}
}

// ClassificationError marks a job failure in the model call or response
// parse. No store mutation happens once one is raised.
type ClassificationError struct {
	Stage string // "call" or "parse"
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed (%s): %v", e.Stage, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
