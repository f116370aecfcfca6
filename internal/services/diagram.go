package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/types"
	"github.com/google/uuid"
)

// defaultAllocRetries bounds the retry loops for short-ID and
// version-number allocation. The read-max-then-insert sequence is not
// atomic; the storage layer's uniqueness constraints catch a lost race
// and the loop re-reads and retries.
const defaultAllocRetries = 3

// DiagramRepository defines persistence operations for diagrams.
type DiagramRepository interface {
	Get(ctx context.Context, id string) (types.Diagram, error)
	GetByShortID(ctx context.Context, shortID string) (types.Diagram, error)
	ListByOwner(ctx context.Context, ownerID int) ([]types.Diagram, error)
	ListAll(ctx context.Context) ([]types.Diagram, error)
	Create(ctx context.Context, diagram types.Diagram) (types.Diagram, error)
	Update(ctx context.Context, diagram types.Diagram) (types.Diagram, error)
	Delete(ctx context.Context, id string) error
	MaxShortSeq(ctx context.Context) (int, error)
	NamesByOwner(ctx context.Context, ownerID int, base string) ([]string, error)
	MaxVersion(ctx context.Context, diagramID string) (int, error)
	InsertVersion(ctx context.Context, version types.DiagramVersion) (types.DiagramVersion, error)
	ListVersions(ctx context.Context, diagramID string) ([]types.DiagramVersion, error)
}

// DiagramService governs access to user-owned diagrams and allocates
// their identifiers.
type DiagramService struct {
	repo         DiagramRepository
	allocRetries int
}

func NewDiagramService(repo DiagramRepository) *DiagramService {
	return &DiagramService{repo: repo, allocRetries: defaultAllocRetries}
}

// Get resolves ref (opaque ID or "LAB-n" short ID) and enforces
// ownership. Existence is checked first: a missing diagram is
// store.ErrNotFound, an existing diagram the requester may not touch is
// ErrForbidden, and the two are never conflated.
func (s *DiagramService) Get(ctx context.Context, ref string, requester types.User) (types.Diagram, error) {
	diagram, err := s.resolve(ctx, ref)
	if err != nil {
		return types.Diagram{}, err
	}
	if !canAccess(diagram, requester) {
		return types.Diagram{}, ErrForbidden
	}
	return diagram, nil
}

// List returns the requester's diagrams; an admin sees all of them.
func (s *DiagramService) List(ctx context.Context, requester types.User) ([]types.Diagram, error) {
	if requester.IsAdmin() {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByOwner(ctx, requester.ID)
}

type CreateDiagramParams struct {
	Type       string
	Name       string
	Content    json.RawMessage
	Tags       []string
	IsTemplate bool
}

// Create allocates a short ID and inserts the diagram. A name that
// exactly matches one of the owner's existing diagrams is suffixed with
// " (N)"; a short-ID race with a concurrent creator is retried against
// the uniqueness constraint. When content is supplied, version 1 is
// saved alongside.
func (s *DiagramService) Create(ctx context.Context, params CreateDiagramParams, owner types.User) (types.Diagram, error) {
	if !types.ValidDiagramType(params.Type) {
		return types.Diagram{}, ErrInvalidDiagramType
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return types.Diagram{}, ErrNameRequired
	}

	existing, err := s.repo.NamesByOwner(ctx, owner.ID, name)
	if err != nil {
		return types.Diagram{}, err
	}
	name = nextAvailableName(name, existing)

	var lastErr error
	for attempt := 0; attempt < s.allocRetries; attempt++ {
		seq, err := s.repo.MaxShortSeq(ctx)
		if err != nil {
			return types.Diagram{}, err
		}

		created, err := s.repo.Create(ctx, types.Diagram{
			ID:         uuid.NewString(),
			ShortID:    types.FormatShortID(seq + 1),
			Type:       params.Type,
			Name:       name,
			Content:    params.Content,
			Tags:       params.Tags,
			IsTemplate: params.IsTemplate,
			CreatedBy:  owner.ID,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				lastErr = err
				continue
			}
			return types.Diagram{}, err
		}

		if len(params.Content) > 0 {
			if _, err := s.saveVersion(ctx, created.ID, params.Content, owner.ID); err != nil {
				return types.Diagram{}, err
			}
		}
		return created, nil
	}
	return types.Diagram{}, fmt.Errorf("short id allocation exhausted retries: %w", lastErr)
}

type UpdateDiagramParams struct {
	Name       *string
	Content    json.RawMessage
	Tags       *[]string
	IsTemplate *bool
}

// Update applies the provided fields to an owned diagram. A content
// update appends a new version to the diagram's history.
func (s *DiagramService) Update(ctx context.Context, ref string, params UpdateDiagramParams, requester types.User) (types.Diagram, error) {
	diagram, err := s.Get(ctx, ref, requester)
	if err != nil {
		return types.Diagram{}, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return types.Diagram{}, ErrNameRequired
		}
		diagram.Name = name
	}
	if params.Content != nil {
		diagram.Content = params.Content
	}
	if params.Tags != nil {
		diagram.Tags = *params.Tags
	}
	if params.IsTemplate != nil {
		diagram.IsTemplate = *params.IsTemplate
	}

	updated, err := s.repo.Update(ctx, diagram)
	if err != nil {
		return types.Diagram{}, err
	}

	if len(params.Content) > 0 {
		if _, err := s.saveVersion(ctx, updated.ID, params.Content, requester.ID); err != nil {
			return types.Diagram{}, err
		}
	}
	return updated, nil
}

// Delete removes an owned diagram and, through the schema's cascade, its
// version history.
func (s *DiagramService) Delete(ctx context.Context, ref string, requester types.User) error {
	diagram, err := s.Get(ctx, ref, requester)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, diagram.ID)
}

// Versions returns an owned diagram's version history, oldest first.
func (s *DiagramService) Versions(ctx context.Context, ref string, requester types.User) ([]types.DiagramVersion, error) {
	diagram, err := s.Get(ctx, ref, requester)
	if err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, diagram.ID)
}

// SaveVersion appends a version for an owned diagram, allocating
// max(existing)+1 under the same retry-on-conflict discipline as short
// IDs.
func (s *DiagramService) SaveVersion(ctx context.Context, ref string, content json.RawMessage, requester types.User) (types.DiagramVersion, error) {
	diagram, err := s.Get(ctx, ref, requester)
	if err != nil {
		return types.DiagramVersion{}, err
	}
	return s.saveVersion(ctx, diagram.ID, content, requester.ID)
}

func (s *DiagramService) saveVersion(ctx context.Context, diagramID string, content json.RawMessage, author int) (types.DiagramVersion, error) {
	var lastErr error
	for attempt := 0; attempt < s.allocRetries; attempt++ {
		current, err := s.repo.MaxVersion(ctx, diagramID)
		if err != nil {
			return types.DiagramVersion{}, err
		}

		version, err := s.repo.InsertVersion(ctx, types.DiagramVersion{
			DiagramID:     diagramID,
			VersionNumber: current + 1,
			Content:       content,
			CreatedBy:     author,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				lastErr = err
				continue
			}
			return types.DiagramVersion{}, err
		}
		return version, nil
	}
	return types.DiagramVersion{}, fmt.Errorf("version allocation exhausted retries: %w", lastErr)
}

func (s *DiagramService) resolve(ctx context.Context, ref string) (types.Diagram, error) {
	if _, ok := types.ParseShortID(ref); ok {
		return s.repo.GetByShortID(ctx, ref)
	}
	return s.repo.Get(ctx, ref)
}

func canAccess(diagram types.Diagram, requester types.User) bool {
	return requester.IsAdmin() || diagram.CreatedBy == requester.ID
}

var nameSuffixPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// nextAvailableName disambiguates an exact duplicate of an existing name
// by appending " (N)", where N is one greater than the highest suffix
// already in use for that base name.
func nextAvailableName(base string, existing []string) string {
	taken := false
	maxSuffix := 0
	for _, name := range existing {
		if name == base {
			taken = true
			continue
		}
		m := nameSuffixPattern.FindStringSubmatch(name)
		if m == nil || m[1] != base {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > maxSuffix {
			maxSuffix = n
		}
	}
	if !taken {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, maxSuffix+1)
}
