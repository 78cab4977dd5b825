package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklens/internal/llm"
	"github.com/tracklens/internal/store"
)

// fakeLLM returns canned JSON responses and records every prompt it sees.
type fakeLLM struct {
	responses []string
	err       error
	delay     time.Duration
	prompts   []string
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, prompt, model string, target interface{}) error {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	raw := `{"topics":[],"useCases":[],"issues":[],"newTopics":[],"newUseCases":[],"newIssues":[],"explanation":""}`
	if len(f.responses) > 0 {
		raw = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	return llm.DecodeResponse(raw, target)
}

const (
	testProject = "proj-1"
	testOrg     = "org-1"
)

func newTestService(st store.Store, client *fakeLLM) *Service {
	return NewService(st, client, 5*time.Second)
}

func baseRequest() Request {
	return Request{
		Input:  "How do I reset my password?",
		Output: "Go to settings > security.",
		Event:  "support_chat",
		Model:  "gpt-4o",
	}
}

func TestTrackEmptyTaxonomyScenario(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{responses: []string{`{
		"topics": [], "useCases": [], "issues": [],
		"newTopics": [{"name":"Account Access","description":"Password and login questions"}],
		"newUseCases": [{"name":"Self-service support","description":"User resolves issue without an agent"}],
		"newIssues": [{"name":"Password reset friction","description":"Users cannot find the reset flow"}],
		"explanation": "Support conversation about password reset."
	}`}}
	svc := newTestService(st, client)

	req := baseRequest()
	req.ConversationID = "conv-1"

	interaction, err := svc.Track(context.Background(), testProject, testOrg, req)
	require.NoError(t, err)

	event, err := st.EventByName(context.Background(), "support_chat", testProject, testOrg)
	require.NoError(t, err)
	assert.Equal(t, event.ID, interaction.EventID)

	conv, err := st.ConversationByIdentifier(context.Background(), "conv-1", testProject, testOrg)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, interaction.ConversationID)

	topics, _ := st.ListTopics(context.Background(), testProject, testOrg)
	useCases, _ := st.ListUseCases(context.Background(), testProject, testOrg)
	issues, _ := st.ListIssues(context.Background(), testProject, testOrg)
	require.Len(t, topics, 1)
	require.Len(t, useCases, 1)
	require.Len(t, issues, 1)
	assert.Equal(t, "Account Access", topics[0].Name)

	topicLinks, _ := st.InteractionTopicIDs(context.Background(), interaction.ID)
	useCaseLinks, _ := st.InteractionUseCaseIDs(context.Background(), interaction.ID)
	issueLinks, _ := st.InteractionIssueIDs(context.Background(), interaction.ID)
	assert.Equal(t, []string{topics[0].ID}, topicLinks)
	assert.Equal(t, []string{useCases[0].ID}, useCaseLinks)
	assert.Equal(t, []string{issues[0].ID}, issueLinks)

	assert.Equal(t, interaction.Prompt, client.prompts[0])
}

func TestTrackConversationContinuity(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{}
	svc := newTestService(st, client)

	first := baseRequest()
	first.ConversationID = "conv-1"
	_, err := svc.Track(context.Background(), testProject, testOrg, first)
	require.NoError(t, err)

	second := baseRequest()
	second.ConversationID = "conv-1"
	second.Input = "It says my token is expired."
	_, err = svc.Track(context.Background(), testProject, testOrg, second)
	require.NoError(t, err)

	// Exactly one conversation row across both jobs.
	conv, err := st.ConversationByIdentifier(context.Background(), "conv-1", testProject, testOrg)
	require.NoError(t, err)
	all, err := st.InteractionsByConversation(context.Background(), conv.ID, testProject, testOrg)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The second prompt carries the first exchange as prior context.
	require.Len(t, client.prompts, 2)
	assert.NotContains(t, client.prompts[0], "Previous Interactions")
	assert.Contains(t, client.prompts[1], "Previous Interactions")
	assert.Contains(t, client.prompts[1], "How do I reset my password?")
}

func TestTrackDropsUnresolvedTaxonomyIDs(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{responses: []string{`{
		"topics": ["no-such-topic"], "useCases": ["no-such-usecase"], "issues": ["no-such-issue"],
		"newTopics": [], "newUseCases": [], "newIssues": [],
		"explanation": "hallucinated ids"
	}`}}
	svc := newTestService(st, client)

	interaction, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.NoError(t, err)

	topicLinks, _ := st.InteractionTopicIDs(context.Background(), interaction.ID)
	useCaseLinks, _ := st.InteractionUseCaseIDs(context.Background(), interaction.ID)
	issueLinks, _ := st.InteractionIssueIDs(context.Background(), interaction.ID)
	assert.Empty(t, topicLinks)
	assert.Empty(t, useCaseLinks)
	assert.Empty(t, issueLinks)
}

func TestTrackNeverLinksAcrossScope(t *testing.T) {
	st := store.NewInMemoryStore()

	foreign := &store.Topic{Name: "Billing", Description: "Billing questions", ProjectID: "other-project", OrganizationID: "other-org"}
	require.NoError(t, st.CreateTopic(context.Background(), foreign))

	client := &fakeLLM{responses: []string{`{
		"topics": ["` + foreign.ID + `"], "useCases": [], "issues": [],
		"newTopics": [], "newUseCases": [], "newIssues": [],
		"explanation": "id exists but belongs to another project"
	}`}}
	svc := newTestService(st, client)

	interaction, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.NoError(t, err)

	topicLinks, _ := st.InteractionTopicIDs(context.Background(), interaction.ID)
	assert.Empty(t, topicLinks, "a row outside the interaction's scope must never be linked")
}

func TestTrackMatchedAndProposedEntries(t *testing.T) {
	st := store.NewInMemoryStore()

	existing := &store.Topic{Name: "Authentication", Description: "Login flows", ProjectID: testProject, OrganizationID: testOrg}
	require.NoError(t, st.CreateTopic(context.Background(), existing))

	client := &fakeLLM{responses: []string{`{
		"topics": ["` + existing.ID + `"], "useCases": [], "issues": [],
		"newTopics": [{"name":"Password Reset","description":"Reset flow"}],
		"newUseCases": [], "newIssues": [],
		"explanation": "one match, one proposal"
	}`}}
	svc := newTestService(st, client)

	interaction, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.NoError(t, err)

	topics, _ := st.ListTopics(context.Background(), testProject, testOrg)
	assert.Len(t, topics, 2)

	topicLinks, _ := st.InteractionTopicIDs(context.Background(), interaction.ID)
	assert.Len(t, topicLinks, 2)
	assert.Contains(t, topicLinks, existing.ID)
}

func TestTrackClassificationFailureContainment(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{err: errors.New("connection refused")}
	svc := NewService(st, client, time.Second)

	req := baseRequest()
	_, err := svc.Track(context.Background(), testProject, testOrg, req)
	require.Error(t, err)

	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)

	_, err = st.EventByName(context.Background(), "support_chat", testProject, testOrg)
	assert.ErrorIs(t, err, store.ErrNotFound, "no event may be created for a failed classification")

	count, _ := st.CountInteractions(context.Background(), testProject, testOrg)
	assert.Zero(t, count)
	topics, _ := st.ListTopics(context.Background(), testProject, testOrg)
	assert.Empty(t, topics)
}

func TestTrackUnparseableResponseFailsAsParse(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{responses: []string{"I could not produce a classification."}}
	svc := newTestService(st, client)

	_, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.Error(t, err)

	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "parse", cerr.Stage)
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)

	count, _ := st.CountInteractions(context.Background(), testProject, testOrg)
	assert.Zero(t, count)
}

func TestTrackTimeoutFailsWithoutMutation(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{delay: 200 * time.Millisecond}
	svc := NewService(st, client, 20*time.Millisecond)

	_, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.Error(t, err)

	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "call", cerr.Stage)

	count, _ := st.CountInteractions(context.Background(), testProject, testOrg)
	assert.Zero(t, count)
}

func TestTrackRejectsInvalidPayload(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newTestService(st, &fakeLLM{})

	req := baseRequest()
	req.Event = ""
	_, err := svc.Track(context.Background(), testProject, testOrg, req)
	assert.Error(t, err)

	req = baseRequest()
	req.URLs = []store.Attachment{{Name: "shot", FileType: "audio", Src: "https://example.com/a"}}
	_, err = svc.Track(context.Background(), testProject, testOrg, req)
	assert.Error(t, err)
}

func TestTrackReusesExistingEvent(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &fakeLLM{}
	svc := newTestService(st, client)

	first, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.NoError(t, err)
	second, err := svc.Track(context.Background(), testProject, testOrg, baseRequest())
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID, "same event name within scope resolves to one row")
}
