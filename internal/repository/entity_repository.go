package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/patrickmn/go-cache"

	"github.com/odpi/egeria-sub244/internal/db"
	"github.com/odpi/egeria-sub244/internal/domain"
)

const entityColumns = "e.id, e.type_name, e.properties, e.classifications, e.version, e.created_at, e.updated_at"

// entityRepository implements EntityRepository on Postgres
type entityRepository struct {
	conn  *db.Connection
	plans *cache.Cache
}

// NewEntityRepository creates a new Postgres entity repository. Compiled
// search plans are kept for planTTL.
func NewEntityRepository(conn *db.Connection, planTTL time.Duration) EntityRepository {
	if planTTL <= 0 {
		planTTL = 5 * time.Minute
	}
	return &entityRepository{
		conn:  conn,
		plans: cache.New(planTTL, 2*planTTL),
	}
}

// Create creates a new entity
func (r *entityRepository) Create(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	propertiesJSON, classificationsJSON, err := marshalEntity(entity)
	if err != nil {
		return domain.EntityDetail{}, err
	}

	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO entities AS e (id, type_name, properties, classifications, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
		RETURNING `+entityColumns,
		entity.ID, entity.TypeName, propertiesJSON, classificationsJSON)
	created, err := scanEntity(row)
	if err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return created, nil
}

// GetByID retrieves an entity by ID
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EntityDetail, error) {
	row := r.conn.Pool.QueryRow(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.id = $1", id)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityDetail{}, fmt.Errorf("failed to get entity %s: %w", id, ErrEntityNotFound)
		}
		return domain.EntityDetail{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// GetByIDs retrieves multiple entities by their IDs.
func (r *entityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error) {
	if len(ids) == 0 {
		return []domain.EntityDetail{}, nil
	}

	rows, err := r.conn.Pool.Query(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	return entities, nil
}

// Update replaces an entity's content, checking the version when one is given.
func (r *entityRepository) Update(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	propertiesJSON, classificationsJSON, err := marshalEntity(entity)
	if err != nil {
		return domain.EntityDetail{}, err
	}

	var updated domain.EntityDetail
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var current int64
		if err := tx.QueryRow(ctx, "SELECT version FROM entities WHERE id = $1 FOR UPDATE", entity.ID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("entity %s: %w", entity.ID, ErrEntityNotFound)
			}
			return err
		}
		if entity.Version != 0 && entity.Version != current {
			return fmt.Errorf("entity %s has version %d, update carries %d: %w", entity.ID, current, entity.Version, ErrVersionConflict)
		}

		row := tx.QueryRow(ctx, `
			UPDATE entities AS e
			SET type_name = $2, properties = $3, classifications = $4, version = e.version + 1, updated_at = NOW()
			WHERE e.id = $1
			RETURNING `+entityColumns,
			entity.ID, entity.TypeName, propertiesJSON, classificationsJSON)
		var scanErr error
		updated, scanErr = scanEntity(row)
		return scanErr
	})
	if err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to update entity: %w", err)
	}
	return updated, nil
}

// Delete deletes an entity
func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx, "DELETE FROM entities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete entity %s: %w", id, ErrEntityNotFound)
	}
	return nil
}

// Find compiles the search into SQL, counts all matches and returns the
// requested page.
func (r *entityRepository) Find(ctx context.Context, search domain.EntitySearch) ([]domain.EntityDetail, int, error) {
	plan, err := r.plan(search)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM entities e WHERE "+plan.where, plan.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count matching entities: %w", err)
	}
	if total == 0 || search.FromElement >= total {
		return []domain.EntityDetail{}, total, nil
	}

	query, args := pageQuery(plan, search)
	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find entities: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find entities: %w", err)
	}
	return entities, total, nil
}

// Count returns the number of stored entities
func (r *entityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.conn.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM entities").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *entityRepository) plan(search domain.EntitySearch) (compiledPlan, error) {
	key := search.Fingerprint()
	if cached, ok := r.plans.Get(key); ok {
		return cached.(compiledPlan), nil
	}
	plan, err := compileSearch(search)
	if err != nil {
		return compiledPlan{}, fmt.Errorf("failed to compile search: %w", err)
	}
	r.plans.SetDefault(key, plan)
	return plan, nil
}

// pageQuery appends ordering and paging to a copy of the plan's args so
// the cached plan is never modified.
func pageQuery(plan compiledPlan, search domain.EntitySearch) (string, []any) {
	args := make([]any, len(plan.args), len(plan.args)+3)
	copy(args, plan.args)

	query := "SELECT " + entityColumns + " FROM entities e WHERE " + plan.where + " " +
		orderClause(search.SequencingOrder, search.SequencingProperty, &args)
	if search.PageSize > 0 {
		args = append(args, search.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if search.FromElement > 0 {
		args = append(args, search.FromElement)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func marshalEntity(entity domain.EntityDetail) (json.RawMessage, json.RawMessage, error) {
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	classificationsJSON, err := entity.GetClassificationsAsJSONB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal classifications: %w", err)
	}
	return propertiesJSON, classificationsJSON, nil
}

func scanEntity(row pgx.Row) (domain.EntityDetail, error) {
	var (
		entity          domain.EntityDetail
		properties      []byte
		classifications []byte
	)
	if err := row.Scan(&entity.ID, &entity.TypeName, &properties, &classifications, &entity.Version, &entity.CreatedAt, &entity.UpdatedAt); err != nil {
		return domain.EntityDetail{}, err
	}
	return buildEntity(entity, properties, classifications)
}

func buildEntity(entity domain.EntityDetail, properties, classifications []byte) (domain.EntityDetail, error) {
	var err error
	entity.Properties, err = domain.FromJSONBProperties(properties)
	if err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	entity.Classifications, err = domain.FromJSONBClassifications(classifications)
	if err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to unmarshal classifications: %w", err)
	}
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()
	return entity, nil
}

func collectEntities(rows pgx.Rows) ([]domain.EntityDetail, error) {
	defer rows.Close()
	entities := make([]domain.EntityDetail, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}
