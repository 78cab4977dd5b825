package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tracklens/internal/llm"
	"github.com/tracklens/internal/metrics"
	"github.com/tracklens/internal/store"
)

// DefaultClassifyTimeout bounds the language-model call per job.
const DefaultClassifyTimeout = 60 * time.Second

// Service runs the enrichment pipeline for one tracking job:
// assemble context, classify, reconcile. The LLM client is constructed once
// at process start and shared; the store provides all coordination.
type Service struct {
	store           store.Store
	llm             llm.Client
	classifyTimeout time.Duration
}

func NewService(st store.Store, client llm.Client, classifyTimeout time.Duration) *Service {
	if classifyTimeout <= 0 {
		classifyTimeout = DefaultClassifyTimeout
	}
	return &Service{store: st, llm: client, classifyTimeout: classifyTimeout}
}

// Track processes one queued interaction end to end and returns the
// persisted Interaction. Failures in any stage leave no partial writes
// except the lazily-created Conversation row, which is intentional: the
// conversation exists independently of whether this classification lands.
func (s *Service) Track(ctx context.Context, projectID, orgID string, req Request) (*store.Interaction, error) {
	if err := req.Validate(); err != nil {
		metrics.JobsFailed.WithLabelValues("validate").Inc()
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	pc, err := s.assemble(ctx, projectID, orgID, req.ConversationID)
	if err != nil {
		metrics.JobsFailed.WithLabelValues("assemble").Inc()
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	prompt := buildPrompt(req, pc)

	analysis, err := s.classify(ctx, prompt, req.Model)
	if err != nil {
		metrics.JobsFailed.WithLabelValues("classify").Inc()
		log.Error().
			Err(err).
			Str("project_id", projectID).
			Str("organization_id", orgID).
			Str("event", req.Event).
			Str("model", req.Model).
			Msg("Classification failed")
		return nil, err
	}

	event, err := ensureEvent(ctx, s.store, req.Event, projectID, orgID)
	if err != nil {
		metrics.JobsFailed.WithLabelValues("reconcile").Inc()
		return nil, err
	}

	var interaction *store.Interaction
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var txErr error
		interaction, txErr = reconcile(ctx, tx, projectID, orgID, req, analysis, prompt, event.ID, pc.ConversationID)
		return txErr
	})
	if err != nil {
		metrics.JobsFailed.WithLabelValues("reconcile").Inc()
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	metrics.JobsProcessed.Inc()
	metrics.InteractionsRecorded.Inc()
	log.Info().
		Str("interaction_id", interaction.ID).
		Str("project_id", projectID).
		Str("event", req.Event).
		Int("matched_topics", len(analysis.Topics)).
		Int("new_topics", len(analysis.NewTopics)).
		Int("matched_use_cases", len(analysis.UseCases)).
		Int("new_use_cases", len(analysis.NewUseCases)).
		Int("matched_issues", len(analysis.Issues)).
		Int("new_issues", len(analysis.NewIssues)).
		Msg("Interaction tracked")

	return interaction, nil
}
