package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/repository"
)

func TestServiceIngestCreatesEntities(t *testing.T) {
	repo := repository.NewMemoryEntityRepository(nil)
	service := NewService(repo, logging.NewNopLogger())

	data := "\xEF\xBB\xBFname,age,active,joined,score\n" +
		"Alice,30,true,2024-01-15,1.5\n" +
		"\n" +
		"Bob,25,no,2023-06-01,2\n"

	summary, err := service.Ingest(context.Background(), Request{
		TypeName: "Person",
		FileName: "people.csv",
		Data:     strings.NewReader(data),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 2, summary.ValidRows)
	assert.Equal(t, 0, summary.InvalidRows)
	assert.Equal(t, map[string]ColumnType{
		"name":   ColumnString,
		"age":    ColumnLong,
		"active": ColumnBoolean,
		"joined": ColumnTimestamp,
		"score":  ColumnDouble,
	}, summary.Columns)
	require.Len(t, summary.Created, 2)

	results, total, err := repo.Find(context.Background(), domain.EntitySearch{
		TypeName:           "Person",
		SequencingOrder:    domain.SequencingPropertyAscending,
		SequencingProperty: "name",
	})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, int64(30), results[0].Properties["age"])
	assert.Equal(t, true, results[0].Properties["active"])
	assert.Equal(t, "2024-01-15T00:00:00Z", results[0].Properties["joined"])
	assert.Equal(t, false, results[1].Properties["active"])
}

func TestServiceIngestReportsBadRows(t *testing.T) {
	service := NewService(repository.NewMemoryEntityRepository(nil), logging.NewNopLogger())
	override := map[string]ColumnType{"age": ColumnLong}

	summary, err := service.Ingest(context.Background(), Request{
		TypeName:        "Person",
		FileName:        "people.csv",
		ColumnOverrides: override,
		Data:            strings.NewReader("name,age\nAlice,30\nBob,unknown\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ValidRows)
	assert.Equal(t, 1, summary.InvalidRows)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 3, summary.Errors[0].RowNumber)
	assert.Contains(t, summary.Errors[0].Message, "field age")
}

func TestServiceIngestExcel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Asset Name", "Owner"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"orders", "sales"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	repo := repository.NewMemoryEntityRepository(nil)
	summary, err := NewService(repo, logging.NewNopLogger()).Ingest(context.Background(), Request{
		TypeName: "Asset",
		FileName: "assets.XLSX",
		Data:     &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ValidRows)

	results, _, err := repo.Find(context.Background(), domain.EntitySearch{TypeName: "Asset"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "orders", results[0].Properties["Asset_Name"])
}

func TestServiceIngestRejectsBadInput(t *testing.T) {
	service := NewService(repository.NewMemoryEntityRepository(nil), logging.NewNopLogger())

	_, err := service.Ingest(context.Background(), Request{FileName: "x.csv", Data: strings.NewReader("a\n1\n")})
	assert.Error(t, err)

	_, err = service.Ingest(context.Background(), Request{TypeName: "T", FileName: "x.pdf", Data: strings.NewReader("a")})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = service.Ingest(context.Background(), Request{TypeName: "T", FileName: "x.csv", Data: strings.NewReader("")})
	assert.Error(t, err)
}

func TestSanitizeHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"first_name", "first_name_2", "column_3", "a_b"},
		sanitizeHeaders([]string{" first name ", "first-name", "", "a.b"}))
}

func TestNormalizeTableWithHeaderIndex(t *testing.T) {
	idx := 1
	table, err := normalizeTable([][]string{{"title"}, {"k", "v"}, {"a"}}, &idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v"}, table.headers)
	assert.Equal(t, [][]string{{"a", ""}}, table.rows)

	bad := 5
	_, err = normalizeTable([][]string{{"k"}}, &bad)
	assert.Error(t, err)
}
