package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tracklens/internal/store"
)

// GenerateAPIKey creates a new API key with the format: tl_<base32_random>
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes)
	return "tl_" + strings.ToLower(encoded), nil
}

// HashAPIKey creates a SHA-256 hash of the API key. Only the hash is stored.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeyPrefix extracts the first 8 characters after "tl_" for display.
func KeyPrefix(key string) string {
	if !strings.HasPrefix(key, "tl_") {
		return ""
	}
	stripped := strings.TrimPrefix(key, "tl_")
	if len(stripped) > 8 {
		return "tl_" + stripped[:8]
	}
	return "tl_" + stripped
}

// ProvisionProject creates a project with a fresh API key and returns the
// raw key. The key is shown once at creation and never recoverable after.
func ProvisionProject(ctx context.Context, st store.Store, name, orgID string) (*store.Project, string, error) {
	key, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	project := &store.Project{
		Name:           name,
		OrganizationID: orgID,
		APIKeyHash:     HashAPIKey(key),
		APIKeyPrefix:   KeyPrefix(key),
	}
	if err := st.CreateProject(ctx, project); err != nil {
		return nil, "", fmt.Errorf("failed to create project: %w", err)
	}
	return project, key, nil
}

// ProjectResolver maps an API key to its project. Implemented by the store;
// stubbed in handler tests.
type ProjectResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*store.Project, error)
}

// StoreResolver resolves API keys against the persistent store.
type StoreResolver struct {
	store store.Store
}

func NewStoreResolver(st store.Store) *StoreResolver {
	return &StoreResolver{store: st}
}

func (r *StoreResolver) ResolveAPIKey(ctx context.Context, key string) (*store.Project, error) {
	return r.store.ProjectByKeyHash(ctx, HashAPIKey(key))
}
