package biz

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
)

// In-memory repositories backing the use case tests. They honor the same
// contracts the gorm implementations do: CAS status writes, idempotent chunk
// inserts, unique storage paths, nil-nil absence results.

type entityKey struct {
	kind types.EntityKind
	id   string
}

type memEntityRepo struct {
	mu       sync.Mutex
	entities map[entityKey]*Entity
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{entities: make(map[entityKey]*Entity)}
}

func (r *memEntityRepo) Get(_ context.Context, kind types.EntityKind, id string) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityKey{kind, id}]
	if !ok {
		return nil, apperrors.NewNotFoundError("entity " + id)
	}
	cp := *e
	return &cp, nil
}

func (r *memEntityRepo) Create(_ context.Context, e *Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entities[entityKey{e.Kind, e.ID}] = &cp
	return nil
}

func (r *memEntityRepo) Delete(_ context.Context, kind types.EntityKind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityKey{kind, id})
	return nil
}

func (r *memEntityRepo) UpdateStatusCAS(_ context.Context, kind types.EntityKind, id string, from, to types.EntityStatus, urls map[types.FileKind]string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityKey{kind, id}]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	if urls != nil {
		e.FinalURLs = make(map[types.FileKind]string, len(urls))
		for k, v := range urls {
			e.FinalURLs[k] = v
		}
	}
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

type memArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[string]*FileArtifact
	entities  *memEntityRepo // for orphan scans
}

func newMemArtifactRepo(entities *memEntityRepo) *memArtifactRepo {
	return &memArtifactRepo{
		artifacts: make(map[string]*FileArtifact),
		entities:  entities,
	}
}

func (r *memArtifactRepo) Create(_ context.Context, a *FileArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.artifacts {
		if other.StoragePath == a.StoragePath {
			return apperrors.New(apperrors.ErrUploadPathConflict, a.StoragePath)
		}
	}
	cp := *a
	r.artifacts[a.ID] = &cp
	return nil
}

func (r *memArtifactRepo) GetByID(_ context.Context, id string) (*FileArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("artifact " + id)
	}
	cp := *a
	return &cp, nil
}

func (r *memArtifactRepo) GetByPath(_ context.Context, path string) (*FileArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.StoragePath == path {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memArtifactRepo) ListByEntity(_ context.Context, kind types.EntityKind, entityID string) ([]*FileArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*FileArtifact
	for _, a := range r.artifacts {
		if a.EntityKind == kind && a.EntityID == entityID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memArtifactRepo) ListPathsUnder(_ context.Context, pathPrefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.artifacts {
		if strings.HasPrefix(a.StoragePath, pathPrefix) {
			out = append(out, a.StoragePath)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memArtifactRepo) Update(_ context.Context, a *FileArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[a.ID]; !ok {
		return apperrors.NewNotFoundError("artifact " + a.ID)
	}
	cp := *a
	r.artifacts[a.ID] = &cp
	return nil
}

func (r *memArtifactRepo) DeleteByEntity(_ context.Context, kind types.EntityKind, entityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.artifacts {
		if a.EntityKind == kind && a.EntityID == entityID {
			delete(r.artifacts, id)
			n++
		}
	}
	return n, nil
}

func (r *memArtifactRepo) ListOrphaned(_ context.Context, kind types.EntityKind) ([]*FileArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.mu.Lock()
	defer r.entities.mu.Unlock()

	var out []*FileArtifact
	for _, a := range r.artifacts {
		if a.EntityKind != kind {
			continue
		}
		if _, ok := r.entities.entities[entityKey{kind, a.EntityID}]; !ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memArtifactRepo) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.artifacts[id]; ok {
			delete(r.artifacts, id)
			n++
		}
	}
	return n, nil
}

type memSessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]*UploadSession
	entities   *memEntityRepo // for orphan scans
	failCreate error          // when set, Create returns it
}

func newMemSessionRepo(entities *memEntityRepo) *memSessionRepo {
	return &memSessionRepo{
		sessions: make(map[string]*UploadSession),
		entities: entities,
	}
}

func (r *memSessionRepo) Create(_ context.Context, s *UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	cp := *s
	cp.UploadedChunks = append([]int(nil), s.UploadedChunks...)
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("upload session " + id)
	}
	return copySession(s), nil
}

func (r *memSessionRepo) GetActive(_ context.Context, kind types.EntityKind, entityID, fileName string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Status == types.SessionStatusActive &&
			s.EntityKind == kind && s.EntityID == entityID && s.FileName == fileName {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) AcknowledgeChunk(_ context.Context, id string, index int) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("upload session " + id)
	}

	present := false
	for _, i := range s.UploadedChunks {
		if i == index {
			present = true
			break
		}
	}
	if !present {
		s.UploadedChunks = append(s.UploadedChunks, index)
		sort.Ints(s.UploadedChunks)
	}

	if len(s.UploadedChunks) == s.TotalChunks && s.Status == types.SessionStatusActive {
		s.Status = types.SessionStatusCompleted
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	s.UpdatedAt = time.Now().UTC()

	return copySession(s), nil
}

func (r *memSessionRepo) UpdateStatus(_ context.Context, id string, status types.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return apperrors.NewNotFoundError("upload session " + id)
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memSessionRepo) ExpireActiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Status == types.SessionStatusActive && s.ExpiresAt.Before(cutoff) {
			s.Status = types.SessionStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Status == types.SessionStatusExpired && s.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) ListOrphaned(_ context.Context, kind types.EntityKind) ([]*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.mu.Lock()
	defer r.entities.mu.Unlock()

	var out []*UploadSession
	for _, s := range r.sessions {
		if s.EntityKind != kind {
			continue
		}
		if _, ok := r.entities.entities[entityKey{kind, s.EntityID}]; !ok {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (r *memSessionRepo) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.sessions[id]; ok {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) ListActiveFinalPaths(_ context.Context, pathPrefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sessions {
		if s.Status == types.SessionStatusActive && strings.HasPrefix(s.FinalPath, pathPrefix) {
			out = append(out, s.FinalPath)
		}
	}
	sort.Strings(out)
	return out, nil
}

func copySession(s *UploadSession) *UploadSession {
	cp := *s
	cp.UploadedChunks = append([]int(nil), s.UploadedChunks...)
	return &cp
}

// memTxRunner runs the unit of work directly; the in-memory repos are
// already atomic per call.
type memTxRunner struct{}

func (memTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeProgressCache struct {
	mu     sync.Mutex
	values map[string]float64
}

func newFakeProgressCache() *fakeProgressCache {
	return &fakeProgressCache{values: make(map[string]float64)}
}

func (c *fakeProgressCache) SetProgress(_ context.Context, sessionID string, pct float64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[sessionID] = pct
	return nil
}

func (c *fakeProgressCache) GetProgress(_ context.Context, sessionID string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct, ok := c.values[sessionID]
	return pct, ok, nil
}

// testEnv wires the use cases over the in-memory repositories. The reset
// service gets a fake blob store so the post-reset sweep runs; the artifact
// registry does not, keeping completion verification opt-in per test.
type testEnv struct {
	entityRepo   *memEntityRepo
	artifactRepo *memArtifactRepo
	sessionRepo  *memSessionRepo
	cache        *fakeProgressCache
	blobs        *fakeBlobStore

	entities  *EntityUseCase
	artifacts *ArtifactUseCase
	sessions  *SessionUseCase
	finalize  *FinalizeUseCase
	reset     *ResetUseCase
	reconcile *ReconcilerUseCase
}

func newTestEnv() *testEnv {
	log := logger.NewNop()

	entityRepo := newMemEntityRepo()
	artifactRepo := newMemArtifactRepo(entityRepo)
	sessionRepo := newMemSessionRepo(entityRepo)
	cache := newFakeProgressCache()
	blobs := newFakeBlobStore()

	entities := NewEntityUseCase(entityRepo, log)

	return &testEnv{
		entityRepo:   entityRepo,
		artifactRepo: artifactRepo,
		sessionRepo:  sessionRepo,
		cache:        cache,
		blobs:        blobs,
		entities:     entities,
		artifacts:    NewArtifactUseCase(artifactRepo, entityRepo, nil, log),
		sessions:     NewSessionUseCase(sessionRepo, entities, cache, DefaultSessionConfig(), log),
		finalize:     NewFinalizeUseCase(entities, artifactRepo, log),
		reset:        NewResetUseCase(memTxRunner{}, entities, artifactRepo, sessionRepo, blobs, log),
		reconcile:    NewReconcilerUseCase(artifactRepo, sessionRepo, nil, log),
	}
}

func (env *testEnv) seedProject(ctx context.Context, id, name string, status types.EntityStatus) *Entity {
	e := &Entity{ID: id, Kind: types.EntityKindProject, Name: name, Status: status}
	_ = env.entityRepo.Create(ctx, e)
	return e
}

func (env *testEnv) seedOption(ctx context.Context, id, projectID string, status types.EntityStatus) *Entity {
	e := &Entity{ID: id, Kind: types.EntityKindOption, ProjectID: projectID, Status: status}
	_ = env.entityRepo.Create(ctx, e)
	return e
}

func (env *testEnv) seedRecord(ctx context.Context, id, optionID, scenarioID string, status types.EntityStatus) *Entity {
	e := &Entity{ID: id, Kind: types.EntityKindRecord, OptionID: optionID, ScenarioID: scenarioID, Status: status}
	_ = env.entityRepo.Create(ctx, e)
	return e
}
