package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odpi/egeria-sub244/internal/config"
	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/export"
	"github.com/odpi/egeria-sub244/internal/ffdc"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/repository"
	"github.com/odpi/egeria-sub244/pkg/search"
)

// SearchService validates find requests against the configured limits and
// runs them on the entity repository. Every error it returns is an
// *ffdc.Error.
type SearchService struct {
	repo     repository.EntityRepository
	limits   config.SearchConfig
	logger   logging.Logger
	metrics  *Metrics
	exporter *export.Exporter
}

// SearchResult is one page of a search.
type SearchResult struct {
	Entities    []domain.EntityDetail `json:"entities"`
	TotalCount  int                   `json:"totalCount"`
	FromElement int                   `json:"fromElement"`
	PageSize    int                   `json:"pageSize"`
}

// ValidationReport describes a search without running it.
type ValidationReport struct {
	Valid       bool           `json:"valid"`
	Explain     string         `json:"explain,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Depth       int            `json:"depth"`
	Error       *ffdc.Response `json:"error,omitempty"`
}

func NewSearchService(repo repository.EntityRepository, limits config.SearchConfig, logger logging.Logger, metrics *Metrics) *SearchService {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &SearchService{
		repo:    repo,
		limits:  limits,
		logger:  logger,
		metrics: metrics,
	}
	s.exporter = export.NewExporter(s.repo.Find, limits.MaxPageSize, 0)
	return s
}

func (s *SearchService) log(ctx context.Context) logging.Logger {
	return logging.FromContextOr(ctx, s.logger)
}

// checkConditions validates everything except paging.
func (s *SearchService) checkConditions(query domain.EntitySearch) (domain.EntitySearch, error) {
	query.TypeName = strings.TrimSpace(query.TypeName)

	order, err := domain.ParseSequencingOrder(string(query.SequencingOrder))
	if err != nil {
		s.metrics.rejectedTotal.WithLabelValues("sequencing").Inc()
		return query, ffdc.New(ffdc.InvalidSearchParameter, err.Error(), err)
	}
	query.SequencingOrder = order
	if order.NeedsProperty() && strings.TrimSpace(query.SequencingProperty) == "" {
		s.metrics.rejectedTotal.WithLabelValues("sequencing").Inc()
		return query, ffdc.New(ffdc.InvalidSearchParameter, fmt.Sprintf("sequencing order %s needs a sequencingProperty", order))
	}

	if query.SearchProperties != nil {
		if err := query.SearchProperties.Validate(); err != nil {
			s.metrics.rejectedTotal.WithLabelValues("conditions").Inc()
			return query, ffdc.New(ffdc.InvalidSearchParameter, "searchProperties: "+err.Error(), err)
		}
	}
	if query.SearchClassifications != nil {
		if err := query.SearchClassifications.Validate(); err != nil {
			s.metrics.rejectedTotal.WithLabelValues("conditions").Inc()
			return query, ffdc.New(ffdc.InvalidSearchParameter, "searchClassifications: "+err.Error(), err)
		}
	}

	depth := query.Depth()
	s.metrics.conditionDepth.Observe(float64(depth))
	if s.limits.MaxConditionDepth > 0 && depth > s.limits.MaxConditionDepth {
		s.metrics.rejectedTotal.WithLabelValues("depth").Inc()
		return query, ffdc.New(ffdc.ConditionTreeTooDeep, depth, s.limits.MaxConditionDepth)
	}

	if query.SearchCriteria != "" {
		if _, err := regexp.Compile(search.AnchoredPattern(query.SearchCriteria)); err != nil {
			s.metrics.rejectedTotal.WithLabelValues("criteria").Inc()
			return query, ffdc.New(ffdc.InvalidSearchParameter, "searchCriteria is not a valid regular expression", err)
		}
	}
	return query, nil
}

func (s *SearchService) checkPaging(query domain.EntitySearch) (domain.EntitySearch, error) {
	if query.FromElement < 0 {
		s.metrics.rejectedTotal.WithLabelValues("paging").Inc()
		return query, ffdc.New(ffdc.InvalidPaging, fmt.Sprintf("fromElement %d is negative", query.FromElement)).
			WithUserAction(s.limits.MaxPageSize)
	}
	switch {
	case query.PageSize < 0:
		s.metrics.rejectedTotal.WithLabelValues("paging").Inc()
		return query, ffdc.New(ffdc.InvalidPaging, fmt.Sprintf("pageSize %d is negative", query.PageSize)).
			WithUserAction(s.limits.MaxPageSize)
	case query.PageSize == 0:
		query.PageSize = s.limits.DefaultPageSize
	case s.limits.MaxPageSize > 0 && query.PageSize > s.limits.MaxPageSize:
		s.metrics.rejectedTotal.WithLabelValues("paging").Inc()
		return query, ffdc.New(ffdc.InvalidPaging, fmt.Sprintf("pageSize %d exceeds the limit", query.PageSize)).
			WithUserAction(s.limits.MaxPageSize)
	}
	return query, nil
}

// Prepare normalises a search and checks it against the limits.
func (s *SearchService) Prepare(query domain.EntitySearch) (domain.EntitySearch, error) {
	query, err := s.checkConditions(query)
	if err != nil {
		return query, err
	}
	return s.checkPaging(query)
}

// Validate reports whether the search would be accepted, with its
// explain form and fingerprint.
func (s *SearchService) Validate(query domain.EntitySearch) ValidationReport {
	prepared, err := s.Prepare(query)
	if err != nil {
		resp := ffdc.ToResponse(err)
		return ValidationReport{Depth: query.Depth(), Error: &resp}
	}
	return ValidationReport{
		Valid:       true,
		Explain:     prepared.Explain(),
		Fingerprint: prepared.Fingerprint(),
		Depth:       prepared.Depth(),
	}
}

// FindEntities runs one page of a search.
func (s *SearchService) FindEntities(ctx context.Context, query domain.EntitySearch) (SearchResult, error) {
	start := time.Now()
	prepared, err := s.Prepare(query)
	if err != nil {
		s.log(ctx).Infow("Rejected search", "error", err)
		return SearchResult{}, err
	}

	logger := s.log(ctx).WithSearch(prepared.Fingerprint())
	logger.Debugw("Running search", "explain", prepared.Explain(), "fromElement", prepared.FromElement, "pageSize", prepared.PageSize)

	entities, total, err := s.repo.Find(ctx, prepared)
	s.metrics.searchDuration.WithLabelValues("find", status(err)).Observe(time.Since(start).Seconds())
	s.metrics.searchTotal.WithLabelValues("find", status(err)).Inc()
	if err != nil {
		logger.Errorw("Search failed", "explain", prepared.Explain(), "error", err)
		return SearchResult{}, s.mapError("findEntities", "", err)
	}
	s.metrics.searchResults.Observe(float64(total))
	logger.Infow("Search completed", "matches", total, "returned", len(entities), "elapsed", time.Since(start))

	return SearchResult{
		Entities:    entities,
		TotalCount:  total,
		FromElement: prepared.FromElement,
		PageSize:    prepared.PageSize,
	}, nil
}

// ExportEntities writes every match of the search to w. A PageSize on the
// search caps the number of rows.
func (s *SearchService) ExportEntities(ctx context.Context, query domain.EntitySearch, format export.Format, w io.Writer) (int, error) {
	start := time.Now()
	prepared, err := s.checkConditions(query)
	if err != nil {
		return 0, err
	}
	if prepared.FromElement < 0 || prepared.PageSize < 0 {
		return 0, ffdc.New(ffdc.InvalidPaging, "fromElement and pageSize must not be negative").WithUserAction(s.limits.MaxPageSize)
	}

	logger := s.log(ctx).WithSearch(prepared.Fingerprint())
	rows, err := s.exporter.Export(ctx, prepared, format, w)
	s.metrics.searchDuration.WithLabelValues("export", status(err)).Observe(time.Since(start).Seconds())
	s.metrics.searchTotal.WithLabelValues("export", status(err)).Inc()
	if err != nil {
		logger.Errorw("Export failed", "format", format, "error", err)
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return 0, ffdc.New(ffdc.InvalidSearchParameter, err.Error(), err)
		}
		return 0, ffdc.New(ffdc.ExportFailure, err.Error(), err)
	}
	s.metrics.exportedRows.Add(float64(rows))
	logger.Infow("Exported search results", "format", format, "rows", rows)
	return rows, nil
}

// CreateEntity stores a new entity.
func (s *SearchService) CreateEntity(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	if err := checkEntity(entity); err != nil {
		return domain.EntityDetail{}, err
	}
	created, err := s.repo.Create(ctx, entity)
	s.metrics.entityOpsTotal.WithLabelValues("create", status(err)).Inc()
	if err != nil {
		return domain.EntityDetail{}, s.mapError("createEntity", entity.ID.String(), err)
	}
	s.log(ctx).Debugw("Created entity", "guid", created.ID, "typeName", created.TypeName)
	return created, nil
}

func (s *SearchService) GetEntity(ctx context.Context, id uuid.UUID) (domain.EntityDetail, error) {
	entity, err := s.repo.GetByID(ctx, id)
	s.metrics.entityOpsTotal.WithLabelValues("get", status(err)).Inc()
	if err != nil {
		return domain.EntityDetail{}, s.mapError("getEntity", id.String(), err)
	}
	return entity, nil
}

// GetEntities returns the stored entities among ids, in no particular order.
func (s *SearchService) GetEntities(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error) {
	entities, err := s.repo.GetByIDs(ctx, ids)
	s.metrics.entityOpsTotal.WithLabelValues("batch_get", status(err)).Inc()
	if err != nil {
		return nil, s.mapError("getEntities", "", err)
	}
	return entities, nil
}

func (s *SearchService) UpdateEntity(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error) {
	if err := checkEntity(entity); err != nil {
		return domain.EntityDetail{}, err
	}
	previous, err := s.repo.GetByID(ctx, entity.ID)
	if err != nil {
		s.metrics.entityOpsTotal.WithLabelValues("update", status(err)).Inc()
		return domain.EntityDetail{}, s.mapError("updateEntity", entity.ID.String(), err)
	}
	updated, err := s.repo.Update(ctx, entity)
	s.metrics.entityOpsTotal.WithLabelValues("update", status(err)).Inc()
	if err != nil {
		return domain.EntityDetail{}, s.mapError("updateEntity", entity.ID.String(), err)
	}
	s.logChanges(ctx, previous, updated)
	return updated, nil
}

func (s *SearchService) logChanges(ctx context.Context, previous, updated domain.EntityDetail) {
	base := domain.NewEntitySnapshot(previous)
	target := domain.NewEntitySnapshot(updated)
	diff, err := domain.DiffEntitySnapshots(
		fmt.Sprintf("version %d", previous.Version), &base,
		fmt.Sprintf("version %d", updated.Version), &target)
	if err != nil {
		s.log(ctx).Warnw("Could not diff entity versions", "guid", updated.ID, "error", err)
		return
	}
	added, removed := domain.ChangedLines(diff)
	s.log(ctx).Infow("Entity updated", "guid", updated.ID, "version", updated.Version, "added", added, "removed", removed)
	s.log(ctx).Debugw("Entity diff", "guid", updated.ID, "diff", diff)
}

func (s *SearchService) DeleteEntity(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	s.metrics.entityOpsTotal.WithLabelValues("delete", status(err)).Inc()
	if err != nil {
		return s.mapError("deleteEntity", id.String(), err)
	}
	return nil
}

func (s *SearchService) CountEntities(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, s.mapError("countEntities", "", err)
	}
	return count, nil
}

func checkEntity(entity domain.EntityDetail) error {
	if strings.TrimSpace(entity.TypeName) == "" {
		return ffdc.New(ffdc.InvalidEntity, "typeName is required")
	}
	for i, c := range entity.Classifications {
		if strings.TrimSpace(c.Name) == "" {
			return ffdc.New(ffdc.InvalidEntity, fmt.Sprintf("classifications[%d] has no name", i))
		}
	}
	return nil
}

func (s *SearchService) mapError(operation, guid string, err error) error {
	var invalid *search.InvalidConditionError
	switch {
	case errors.Is(err, repository.ErrEntityNotFound):
		return ffdc.New(ffdc.UnknownEntity, guid, err)
	case errors.Is(err, repository.ErrVersionConflict):
		return ffdc.New(ffdc.EntityVersionConflict, guid, err)
	case errors.As(err, &invalid):
		return ffdc.New(ffdc.InvalidSearchParameter, invalid.Error(), err)
	default:
		s.logger.Errorw("Repository failure", "operation", operation, "guid", guid, "error", err)
		return ffdc.New(ffdc.RepositoryFailure, operation, err)
	}
}
