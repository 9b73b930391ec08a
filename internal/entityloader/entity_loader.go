package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/odpi/egeria-sub244/internal/domain"
)

// BatchGetter fetches the entities that exist among ids.
type BatchGetter interface {
	GetEntities(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error)
}

type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(source BatchGetter) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Convert keys to []uuid.UUID, failing only the malformed ones
		ids := make([]uuid.UUID, 0, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid UUID: %w", err)}
				continue
			}
			ids = append(ids, id)
		}

		entities, err := source.GetEntities(ctx, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		// Map UUID -> entity for ordering
		entityMap := make(map[uuid.UUID]domain.EntityDetail, len(entities))
		for _, e := range entities {
			entityMap[e.ID] = e
		}

		// Build results in the same order as keys
		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			id := uuid.MustParse(k.String())
			if e, ok := entityMap[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// Load returns the entity with id; ok is false when it does not exist.
func (l *EntityLoader) Load(ctx context.Context, id uuid.UUID) (domain.EntityDetail, bool, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.EntityDetail{}, false, err
	}
	entity, ok := data.(domain.EntityDetail)
	return entity, ok, nil
}

// LoadMany returns the entities that exist among ids, in the order of ids.
func (l *EntityLoader) LoadMany(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	data, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(keys))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	entities := make([]domain.EntityDetail, 0, len(data))
	for _, d := range data {
		if entity, ok := d.(domain.EntityDetail); ok {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}
