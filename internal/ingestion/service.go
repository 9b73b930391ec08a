package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/repository"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006/01/02",
	}
)

// ColumnType is the value type inferred for an uploaded column.
type ColumnType string

const (
	ColumnString    ColumnType = "string"
	ColumnLong      ColumnType = "long"
	ColumnDouble    ColumnType = "double"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "date"
)

// Service turns tabular uploads into entities.
type Service struct {
	entityRepo repository.EntityRepository
	logger     logging.Logger
}

// NewService creates a new ingestion service.
func NewService(entityRepo repository.EntityRepository, logger logging.Logger) *Service {
	return &Service{entityRepo: entityRepo, logger: logger}
}

// Request describes the ingestion input. Every row becomes one entity of
// TypeName; the header row names the properties.
type Request struct {
	TypeName        string
	FileName        string
	HeaderRowIndex  *int
	ColumnOverrides map[string]ColumnType
	Data            io.Reader
}

// RowError reports a row that could not be imported.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows   int                   `json:"totalRows"`
	ValidRows   int                   `json:"validRows"`
	InvalidRows int                   `json:"invalidRows"`
	Columns     map[string]ColumnType `json:"columns"`
	Errors      []RowError            `json:"errors"`
	Created     []string              `json:"created"`
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
}

// Ingest reads the uploaded file, infers a type per column, and creates an
// entity per valid row. Row failures are reported in the summary.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		Columns: map[string]ColumnType{},
		Errors:  []RowError{},
		Created: []string{},
	}

	if strings.TrimSpace(req.TypeName) == "" {
		return summary, errors.New("type name is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}

	columnTypes := make([]ColumnType, len(table.headers))
	for idx, header := range table.headers {
		columnTypes[idx] = profileColumn(idx, table.rows)
		if override, ok := req.ColumnOverrides[header]; ok && override != "" {
			columnTypes[idx] = override
		}
		summary.Columns[header] = columnTypes[idx]
	}
	summary.TotalRows = len(table.rows)

	for rowIdx, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rowNumber := table.headerRowIndex + rowIdx + 2 // 1-based, after the header row

		properties, err := coerceRow(table.headers, columnTypes, row)
		if err != nil {
			summary.addError(rowNumber, err)
			continue
		}

		created, err := s.entityRepo.Create(ctx, domain.NewEntityDetail(req.TypeName, properties))
		if err != nil {
			s.logger.Warnw("Failed to insert imported entity", "row", rowNumber, "error", err)
			summary.addError(rowNumber, fmt.Errorf("failed to insert entity: %w", err))
			continue
		}
		summary.ValidRows++
		summary.Created = append(summary.Created, created.ID.String())
	}

	s.logger.Infow("Imported entities",
		"typeName", req.TypeName, "file", req.FileName,
		"rows", summary.TotalRows, "valid", summary.ValidRows, "invalid", summary.InvalidRows)
	return summary, nil
}

func (s *Summary) addError(rowNumber int, err error) {
	s.InvalidRows++
	s.Errors = append(s.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
}

func coerceRow(headers []string, types []ColumnType, row []string) (map[string]any, error) {
	properties := make(map[string]any, len(headers))
	for colIdx, header := range headers {
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}
		value, err := coerceValue(types[colIdx], raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", header, err)
		}
		properties[header] = value
	}
	return properties, nil
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows, headerRowIndex)
}

// normalizeTable picks the header row (the first non-empty row unless one
// is given) and pads every data row to the header width.
func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	start := 0
	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if isEmptyRow(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		start = *headerRowIndex
	} else {
		for start < len(records) && isEmptyRow(records[start]) {
			start++
		}
		if start == len(records) {
			return tableData{}, errors.New("header row could not be detected")
		}
	}

	headers := sanitizeHeaders(records[start])
	var rows [][]string
	for _, row := range records[start+1:] {
		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, padRow(row, len(headers)))
	}

	return tableData{headers: headers, rows: rows, headerRowIndex: start}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// profileColumn picks the narrowest type every non-empty cell fits.
func profileColumn(col int, rows [][]string) ColumnType {
	isBool, isInt, isFloat, isTimestamp := true, true, true, true
	hasValue := false

	for _, row := range rows {
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeInt(value) {
			isInt = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
		if _, err := parseTimestamp(value); err != nil {
			isTimestamp = false
		}
	}

	switch {
	case !hasValue:
		return ColumnString
	case isBool:
		return ColumnBoolean
	case isInt:
		return ColumnLong
	case isFloat:
		return ColumnDouble
	case isTimestamp:
		return ColumnTimestamp
	default:
		return ColumnString
	}
}

func looksLikeBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	// Allow float representations that can be losslessly converted to int.
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// coerceValue converts a cell. Timestamps are stored as RFC 3339 strings,
// which date conditions accept.
func coerceValue(columnType ColumnType, raw string) (any, error) {
	switch columnType {
	case ColumnString:
		return raw, nil
	case ColumnLong:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to long", raw)
	case ColumnDouble:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to double", raw)
	case ColumnBoolean:
		switch strings.ToLower(raw) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		boolVal, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return boolVal, nil
	case ColumnTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", columnType)
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
