// Package testutil provides in-memory repository fakes for service and
// handler tests. The fakes enforce the same uniqueness rules as the
// Postgres schema (email, short ID, version number) so allocator retry
// paths can be exercised without a database.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/types"
)

// UserRepo is an in-memory stand-in for store.UserRepository.
type UserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[int]types.User)}
}

// Seed inserts a user directly, assigning an ID, for test setup.
func (r *UserRepo) Seed(user types.User) types.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user
}

func (r *UserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepo) List(ctx context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for id := 1; id <= r.nextID; id++ {
		if user, ok := r.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *UserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.PasswordHash = current.PasswordHash
	user.ResetTokenHash = current.ResetTokenHash
	user.ResetTokenExpiresAt = current.ResetTokenExpiresAt
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = &passwordHash
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil
	r.users[id] = user
	return nil
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLoginAt = &at
	r.users[id] = user
	return nil
}

func (r *UserRepo) SetResetToken(ctx context.Context, id int, digest string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ResetTokenHash = &digest
	user.ResetTokenExpiresAt = &expiresAt
	r.users[id] = user
	return nil
}

func (r *UserRepo) ConsumeResetToken(ctx context.Context, digest, passwordHash string, now time.Time) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, user := range r.users {
		if user.ResetTokenHash == nil || *user.ResetTokenHash != digest {
			continue
		}
		if user.ResetTokenExpiresAt == nil || !user.ResetTokenExpiresAt.After(now) {
			continue
		}
		user.PasswordHash = &passwordHash
		user.ResetTokenHash = nil
		user.ResetTokenExpiresAt = nil
		r.users[id] = user
		return user, nil
	}
	return types.User{}, store.ErrNotFound
}

// DiagramRepo is an in-memory stand-in for store.DiagramRepository. Its
// Create and InsertVersion reject duplicates the way the schema's
// uniqueness constraints do, so concurrent allocator races surface as
// store.ErrConflict here too.
type DiagramRepo struct {
	mu       sync.Mutex
	diagrams map[string]types.Diagram
	versions map[string]map[int]types.DiagramVersion
}

func NewDiagramRepo() *DiagramRepo {
	return &DiagramRepo{
		diagrams: make(map[string]types.Diagram),
		versions: make(map[string]map[int]types.DiagramVersion),
	}
}

func (r *DiagramRepo) Get(ctx context.Context, id string) (types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	diagram, ok := r.diagrams[id]
	if !ok {
		return types.Diagram{}, store.ErrNotFound
	}
	return diagram, nil
}

func (r *DiagramRepo) GetByShortID(ctx context.Context, shortID string) (types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, diagram := range r.diagrams {
		if diagram.ShortID == shortID {
			return diagram, nil
		}
	}
	return types.Diagram{}, store.ErrNotFound
}

func (r *DiagramRepo) ListByOwner(ctx context.Context, ownerID int) ([]types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var diagrams []types.Diagram
	for _, diagram := range r.diagrams {
		if diagram.CreatedBy == ownerID {
			diagrams = append(diagrams, diagram)
		}
	}
	return diagrams, nil
}

func (r *DiagramRepo) ListAll(ctx context.Context) ([]types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	diagrams := make([]types.Diagram, 0, len(r.diagrams))
	for _, diagram := range r.diagrams {
		diagrams = append(diagrams, diagram)
	}
	return diagrams, nil
}

func (r *DiagramRepo) Create(ctx context.Context, diagram types.Diagram) (types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.diagrams {
		if existing.ShortID == diagram.ShortID {
			return types.Diagram{}, store.ErrConflict
		}
	}
	now := time.Now()
	diagram.CreatedAt = now
	diagram.UpdatedAt = now
	r.diagrams[diagram.ID] = diagram
	return diagram, nil
}

func (r *DiagramRepo) Update(ctx context.Context, diagram types.Diagram) (types.Diagram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.diagrams[diagram.ID]; !ok {
		return types.Diagram{}, store.ErrNotFound
	}
	diagram.UpdatedAt = time.Now()
	r.diagrams[diagram.ID] = diagram
	return diagram, nil
}

func (r *DiagramRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.diagrams[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.diagrams, id)
	delete(r.versions, id)
	return nil
}

func (r *DiagramRepo) MaxShortSeq(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxSeq := 0
	for _, diagram := range r.diagrams {
		if seq, ok := types.ParseShortID(diagram.ShortID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}

func (r *DiagramRepo) NamesByOwner(ctx context.Context, ownerID int, base string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, diagram := range r.diagrams {
		if diagram.CreatedBy == ownerID {
			names = append(names, diagram.Name)
		}
	}
	return names, nil
}

func (r *DiagramRepo) MaxVersion(ctx context.Context, diagramID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxVersion := 0
	for number := range r.versions[diagramID] {
		if number > maxVersion {
			maxVersion = number
		}
	}
	return maxVersion, nil
}

func (r *DiagramRepo) InsertVersion(ctx context.Context, version types.DiagramVersion) (types.DiagramVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byNumber, ok := r.versions[version.DiagramID]
	if !ok {
		byNumber = make(map[int]types.DiagramVersion)
		r.versions[version.DiagramID] = byNumber
	}
	if _, exists := byNumber[version.VersionNumber]; exists {
		return types.DiagramVersion{}, store.ErrConflict
	}
	version.CreatedAt = time.Now()
	byNumber[version.VersionNumber] = version
	return version, nil
}

func (r *DiagramRepo) ListVersions(ctx context.Context, diagramID string) ([]types.DiagramVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byNumber := r.versions[diagramID]
	versions := make([]types.DiagramVersion, 0, len(byNumber))
	for number := 1; number <= len(byNumber); number++ {
		if version, ok := byNumber[number]; ok {
			versions = append(versions, version)
		}
	}
	return versions, nil
}
