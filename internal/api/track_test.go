package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklens/internal/store"
	"github.com/tracklens/internal/tracker"
)

type stubResolver struct {
	key     string
	project *store.Project
}

func (r *stubResolver) ResolveAPIKey(ctx context.Context, key string) (*store.Project, error) {
	if r.project != nil && key == r.key {
		return r.project, nil
	}
	return nil, store.ErrNotFound
}

type stubEnqueuer struct {
	jobs []tracker.Request
	err  error
}

func (e *stubEnqueuer) EnqueueTrack(ctx context.Context, projectID, orgID string, data tracker.Request) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, data)
	return nil
}

func newTestServer(enqueuer *stubEnqueuer) (*Server, string) {
	key := "tl_testkey123"
	resolver := &stubResolver{
		key:     key,
		project: &store.Project{ID: "proj-1", OrganizationID: "org-1", Name: "demo"},
	}
	return NewServer(0, resolver, enqueuer, nil), key
}

func doTrack(s *Server, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

const validBody = `{
	"input": "How do I reset my password?",
	"output": "Go to settings > security.",
	"event": "support_chat",
	"model": "gpt-4o",
	"conversation_id": "conv-1"
}`

func TestTrackAccepted(t *testing.T) {
	enq := &stubEnqueuer{}
	srv, key := newTestServer(enq)

	rec := doTrack(srv, "Bearer "+key, validBody)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.jobs, 1)
	assert.Equal(t, "support_chat", enq.jobs[0].Event)
	assert.Equal(t, "conv-1", enq.jobs[0].ConversationID)
}

func TestTrackMissingAuthHeader(t *testing.T) {
	enq := &stubEnqueuer{}
	srv, _ := newTestServer(enq)

	rec := doTrack(srv, "", validBody)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, enq.jobs)
}

func TestTrackUnknownAPIKey(t *testing.T) {
	enq := &stubEnqueuer{}
	srv, _ := newTestServer(enq)

	rec := doTrack(srv, "Bearer tl_wrongkey", validBody)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid API key")
	assert.Empty(t, enq.jobs)
}

func TestTrackMalformedAuthHeader(t *testing.T) {
	enq := &stubEnqueuer{}
	srv, key := newTestServer(enq)

	rec := doTrack(srv, key, validBody) // no Bearer prefix

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTrackValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing input", `{"output":"o","event":"e","model":"m"}`},
		{"missing output", `{"input":"i","event":"e","model":"m"}`},
		{"missing event", `{"input":"i","output":"o","model":"m"}`},
		{"missing model", `{"input":"i","output":"o","event":"e"}`},
		{"bad file type", `{"input":"i","output":"o","event":"e","model":"m",
			"urls":[{"name":"n","file_type":"audio","src":"https://example.com/x"}]}`},
		{"bad src", `{"input":"i","output":"o","event":"e","model":"m",
			"urls":[{"name":"n","file_type":"image","src":"not a url"}]}`},
		{"not json", `{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enq := &stubEnqueuer{}
			srv, key := newTestServer(enq)

			rec := doTrack(srv, "Bearer "+key, tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, enq.jobs)
		})
	}
}

func TestTrackAttachmentsForwarded(t *testing.T) {
	enq := &stubEnqueuer{}
	srv, key := newTestServer(enq)

	body := `{"input":"i","output":"o","event":"e","model":"m",
		"urls":[{"name":"screenshot","file_type":"image","src":"https://example.com/s.png"}]}`
	rec := doTrack(srv, "Bearer "+key, body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.jobs, 1)
	require.Len(t, enq.jobs[0].URLs, 1)
	assert.Equal(t, store.AttachmentImage, enq.jobs[0].URLs[0].FileType)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAPIKeyRoundTrip(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "tl_"))
	assert.Equal(t, HashAPIKey(key), HashAPIKey(key))
	assert.True(t, strings.HasPrefix(KeyPrefix(key), "tl_"))
	assert.LessOrEqual(t, len(KeyPrefix(key)), 11)
}

func TestProvisionProjectAndResolve(t *testing.T) {
	st := store.NewInMemoryStore()
	project, key, err := ProvisionProject(context.Background(), st, "demo", "org-1")
	require.NoError(t, err)

	resolver := NewStoreResolver(st)
	resolved, err := resolver.ResolveAPIKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, project.ID, resolved.ID)

	_, err = resolver.ResolveAPIKey(context.Background(), "tl_bogus")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
