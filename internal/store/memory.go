package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type link struct {
	interactionID string
	targetID      string
}

// InMemoryStore is a threadsafe in-memory Store used by tests and local
// development. WithTx snapshots all state before running the callback and
// restores it when the callback fails, matching the rollback contract.
type InMemoryStore struct {
	mu               sync.RWMutex
	projects         map[string]*Project
	events           map[string]*Event
	conversations    map[string]*Conversation
	interactions     map[string]*Interaction
	topics           map[string]*Topic
	useCases         map[string]*UseCase
	issues           map[string]*Issue
	interactionOrder []string
	topicLinks       []link
	useCaseLinks     []link
	issueLinks       []link
	now              func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		projects:      make(map[string]*Project),
		events:        make(map[string]*Event),
		conversations: make(map[string]*Conversation),
		interactions:  make(map[string]*Interaction),
		topics:        make(map[string]*Topic),
		useCases:      make(map[string]*UseCase),
		issues:        make(map[string]*Issue),
		now:           time.Now,
	}
}

func (s *InMemoryStore) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.APIKeyHash == p.APIKeyHash {
			return ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) ProjectByKeyHash(ctx context.Context, keyHash string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.APIKeyHash == keyHash {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) EventByName(ctx context.Context, name, projectID, orgID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.Name == name && e.ProjectID == projectID && e.OrganizationID == orgID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) CreateEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.Name == e.Name && existing.ProjectID == e.ProjectID && existing.OrganizationID == e.OrganizationID {
			return ErrDuplicate
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = s.now()
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) ConversationByIdentifier(ctx context.Context, identifier, projectID, orgID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.Identifier == identifier && c.ProjectID == projectID && c.OrganizationID == orgID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) CreateConversation(ctx context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.conversations {
		if existing.Identifier == c.Identifier && existing.ProjectID == c.ProjectID && existing.OrganizationID == c.OrganizationID {
			return ErrDuplicate
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now()
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) CreateInteraction(ctx context.Context, i *Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = s.now()
	cp := *i
	cp.Attachments = append([]Attachment(nil), i.Attachments...)
	s.interactions[i.ID] = &cp
	s.interactionOrder = append(s.interactionOrder, i.ID)
	return nil
}

func (s *InMemoryStore) InteractionsByConversation(ctx context.Context, conversationID, projectID, orgID string) ([]*Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Interaction
	for _, id := range s.interactionOrder {
		i := s.interactions[id]
		if i.ConversationID == conversationID && i.ProjectID == projectID && i.OrganizationID == orgID {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountInteractions(ctx context.Context, projectID, orgID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, i := range s.interactions {
		if i.ProjectID == projectID && i.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListTopics(ctx context.Context, projectID, orgID string) ([]*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Topic
	for _, t := range s.topics {
		if t.ProjectID == projectID && t.OrganizationID == orgID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListUseCases(ctx context.Context, projectID, orgID string) ([]*UseCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UseCase
	for _, u := range s.useCases {
		if u.ProjectID == projectID && u.OrganizationID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListIssues(ctx context.Context, projectID, orgID string) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Issue
	for _, i := range s.issues {
		if i.ProjectID == projectID && i.OrganizationID == orgID {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) TopicByID(ctx context.Context, id, projectID, orgID string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok || t.ProjectID != projectID || t.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) UseCaseByID(ctx context.Context, id, projectID, orgID string) (*UseCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.useCases[id]
	if !ok || u.ProjectID != projectID || u.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) IssueByID(ctx context.Context, id, projectID, orgID string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.issues[id]
	if !ok || i.ProjectID != projectID || i.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *InMemoryStore) CreateTopic(ctx context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.now()
	cp := *t
	s.topics[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) CreateUseCase(ctx context.Context, u *UseCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	cp := *u
	s.useCases[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) CreateIssue(ctx context.Context, i *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = s.now()
	cp := *i
	s.issues[i.ID] = &cp
	return nil
}

func (s *InMemoryStore) LinkTopic(ctx context.Context, interactionID, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicLinks = append(s.topicLinks, link{interactionID, topicID})
	return nil
}

func (s *InMemoryStore) LinkUseCase(ctx context.Context, interactionID, useCaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCaseLinks = append(s.useCaseLinks, link{interactionID, useCaseID})
	return nil
}

func (s *InMemoryStore) LinkIssue(ctx context.Context, interactionID, issueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueLinks = append(s.issueLinks, link{interactionID, issueID})
	return nil
}

func (s *InMemoryStore) InteractionTopicIDs(ctx context.Context, interactionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collectLinks(s.topicLinks, interactionID), nil
}

func (s *InMemoryStore) InteractionUseCaseIDs(ctx context.Context, interactionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collectLinks(s.useCaseLinks, interactionID), nil
}

func (s *InMemoryStore) InteractionIssueIDs(ctx context.Context, interactionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collectLinks(s.issueLinks, interactionID), nil
}

func (s *InMemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// memSnapshot captures the store state for rollback. Entity pointers are
// shared with the live maps; that is safe because writes always insert
// fresh copies and never mutate a stored value in place.
type memSnapshot struct {
	projects         map[string]*Project
	events           map[string]*Event
	conversations    map[string]*Conversation
	interactions     map[string]*Interaction
	topics           map[string]*Topic
	useCases         map[string]*UseCase
	issues           map[string]*Issue
	interactionOrder []string
	topicLinks       []link
	useCaseLinks     []link
	issueLinks       []link
}

func (s *InMemoryStore) snapshot() *memSnapshot {
	return &memSnapshot{
		projects:         maps.Clone(s.projects),
		events:           maps.Clone(s.events),
		conversations:    maps.Clone(s.conversations),
		interactions:     maps.Clone(s.interactions),
		topics:           maps.Clone(s.topics),
		useCases:         maps.Clone(s.useCases),
		issues:           maps.Clone(s.issues),
		interactionOrder: append([]string(nil), s.interactionOrder...),
		topicLinks:       append([]link(nil), s.topicLinks...),
		useCaseLinks:     append([]link(nil), s.useCaseLinks...),
		issueLinks:       append([]link(nil), s.issueLinks...),
	}
}

func (s *InMemoryStore) restore(snap *memSnapshot) {
	s.projects = snap.projects
	s.events = snap.events
	s.conversations = snap.conversations
	s.interactions = snap.interactions
	s.topics = snap.topics
	s.useCases = snap.useCases
	s.issues = snap.issues
	s.interactionOrder = snap.interactionOrder
	s.topicLinks = snap.topicLinks
	s.useCaseLinks = snap.useCaseLinks
	s.issueLinks = snap.issueLinks
}

func collectLinks(links []link, interactionID string) []string {
	var out []string
	for _, l := range links {
		if l.interactionID == interactionID {
			out = append(out, l.targetID)
		}
	}
	return out
}
