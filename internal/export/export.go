// Package export writes search results as CSV or XLSX tables.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odpi/egeria-sub244/internal/domain"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet holding exported entities.
const SheetName = "Entities"

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var fixedHeaders = []string{"guid", "typeName", "version", "createTime", "updateTime", "classifications"}

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Finder returns one page of a search and the total number of matches.
type Finder func(ctx context.Context, search domain.EntitySearch) ([]domain.EntityDetail, int, error)

// Exporter pages through a search and writes every match.
type Exporter struct {
	find     Finder
	pageSize int
	maxRows  int
}

// NewExporter pages with pageSize and stops after maxRows rows; maxRows of
// zero means no limit.
func NewExporter(find Finder, pageSize, maxRows int) *Exporter {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Exporter{find: find, pageSize: pageSize, maxRows: maxRows}
}

// Collect runs the search from its FromElement to the end, honouring the
// search's PageSize as an overall row limit when it is set.
func (e *Exporter) Collect(ctx context.Context, search domain.EntitySearch) ([]domain.EntityDetail, error) {
	limit := e.maxRows
	if search.PageSize > 0 && (limit == 0 || search.PageSize < limit) {
		limit = search.PageSize
	}

	page := search
	page.PageSize = e.pageSize
	collected := make([]domain.EntityDetail, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entities, total, err := e.find(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		collected = append(collected, entities...)
		if limit > 0 && len(collected) >= limit {
			return collected[:limit], nil
		}
		page.FromElement += len(entities)
		if len(entities) < e.pageSize || page.FromElement >= total {
			return collected, nil
		}
	}
}

// Export collects the results of search and writes them in format to w.
// It returns the number of entity rows written.
func (e *Exporter) Export(ctx context.Context, search domain.EntitySearch, format Format, w io.Writer) (int, error) {
	entities, err := e.Collect(ctx, search)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatCSV:
		err = WriteCSV(w, entities)
	case FormatXLSX:
		err = WriteXLSX(w, entities)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return 0, err
	}
	return len(entities), nil
}

// Headers lists the fixed columns followed by every property name in the
// result set, sorted.
func Headers(entities []domain.EntityDetail) []string {
	seen := make(map[string]struct{})
	for _, entity := range entities {
		for key := range entity.Properties {
			seen[key] = struct{}{}
		}
	}
	properties := make([]string, 0, len(seen))
	for key := range seen {
		properties = append(properties, key)
	}
	sort.Strings(properties)
	return append(append([]string(nil), fixedHeaders...), properties...)
}

func row(entity domain.EntityDetail, headers []string) []string {
	names := make([]string, len(entity.Classifications))
	for i, c := range entity.Classifications {
		names[i] = c.Name
	}
	out := make([]string, len(headers))
	out[0] = entity.ID.String()
	out[1] = entity.TypeName
	out[2] = fmt.Sprintf("%d", entity.Version)
	out[3] = formatValue(entity.CreatedAt)
	out[4] = formatValue(entity.UpdatedAt)
	out[5] = strings.Join(names, ";")
	for i := len(fixedHeaders); i < len(headers); i++ {
		out[i] = formatValue(entity.Properties[headers[i]])
	}
	return out
}

func WriteCSV(w io.Writer, entities []domain.EntityDetail) error {
	csvWriter := csv.NewWriter(w)
	headers := Headers(entities)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, entity := range entities {
		if err := csvWriter.Write(row(entity, headers)); err != nil {
			return fmt.Errorf("write entity row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func WriteXLSX(w io.Writer, entities []domain.EntityDetail) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	headers := Headers(entities)
	if err := sw.SetRow("A1", toCells(headers)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, entity := range entities {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row(entity, headers))); err != nil {
			return fmt.Errorf("write entity row: %w", err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
