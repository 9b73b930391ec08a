package repository

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/matcher"
)

// evaluationChunk is the number of entities one worker evaluates at a time.
const evaluationChunk = 256

// memoryEntityRepository keeps entities in a map and evaluates searches with
// the in-memory matcher.
type memoryEntityRepository struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]domain.EntityDetail
	matcher  *matcher.Matcher
	workers  int
}

// NewMemoryEntityRepository creates an empty in-memory repository.
func NewMemoryEntityRepository(m *matcher.Matcher) EntityRepository {
	if m == nil {
		m = matcher.New()
	}
	return &memoryEntityRepository{
		entities: make(map[uuid.UUID]domain.EntityDetail),
		matcher:  m,
		workers:  runtime.GOMAXPROCS(0),
	}
}

func (r *memoryEntityRepository) Create(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = entity.CreatedAt
	entity.Version = 1

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[entity.ID]; exists {
		return domain.EntityDetail{}, fmt.Errorf("failed to create entity: entity %s already exists", entity.ID)
	}
	stored := entity.Clone()
	r.entities[entity.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryEntityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EntityDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.entities[id]
	if !ok {
		return domain.EntityDetail{}, fmt.Errorf("failed to get entity %s: %w", id, ErrEntityNotFound)
	}
	return entity.Clone(), nil
}

func (r *memoryEntityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.EntityDetail, 0, len(ids))
	for _, id := range ids {
		if entity, ok := r.entities[id]; ok {
			result = append(result, entity.Clone())
		}
	}
	return result, nil
}

func (r *memoryEntityRepository) Update(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entities[entity.ID]
	if !ok {
		return domain.EntityDetail{}, fmt.Errorf("failed to update entity %s: %w", entity.ID, ErrEntityNotFound)
	}
	if entity.Version != 0 && entity.Version != current.Version {
		return domain.EntityDetail{}, fmt.Errorf("failed to update entity %s at version %d (stored %d): %w",
			entity.ID, entity.Version, current.Version, ErrVersionConflict)
	}
	updated := entity.Clone()
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	updated.Version = current.Version + 1
	r.entities[entity.ID] = updated
	return updated.Clone(), nil
}

func (r *memoryEntityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return fmt.Errorf("failed to delete entity %s: %w", id, ErrEntityNotFound)
	}
	delete(r.entities, id)
	return nil
}

func (r *memoryEntityRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entities)), nil
}

// Find evaluates the search over a snapshot of the store. Chunks are
// evaluated concurrently; the result order depends only on the sequencing.
func (r *memoryEntityRepository) Find(ctx context.Context, s domain.EntitySearch) ([]domain.EntityDetail, int, error) {
	r.mu.RLock()
	snapshot := make([]domain.EntityDetail, 0, len(r.entities))
	for _, entity := range r.entities {
		snapshot = append(snapshot, entity)
	}
	r.mu.RUnlock()

	matched := make([]bool, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for start := 0; start < len(snapshot); start += evaluationChunk {
		start := start
		end := start + evaluationChunk
		if end > len(snapshot) {
			end = len(snapshot)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				ok, err := r.matcher.MatchEntity(snapshot[i], s)
				if err != nil {
					return fmt.Errorf("failed to evaluate entity %s: %w", snapshot[i].ID, err)
				}
				matched[i] = ok
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	results := make([]domain.EntityDetail, 0)
	for i, ok := range matched {
		if ok {
			results = append(results, snapshot[i].Clone())
		}
	}
	sortEntities(results, s.SequencingOrder, s.SequencingProperty)
	total := len(results)
	return pageEntities(results, s.FromElement, s.PageSize), total, nil
}
