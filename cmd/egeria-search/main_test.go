package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odpi/egeria-sub244/internal/config"
)

var testLimits = config.SearchConfig{
	MaxConditionDepth: 3,
	DefaultPageSize:   50,
	MaxPageSize:       1000,
	PlanCacheTTL:      time.Minute,
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func captureCmd() (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	return cmd, out
}

func TestRunValidateAcceptsSearch(t *testing.T) {
	path := writeFile(t, "search.json", `{
		"typeName": "Person",
		"searchProperties": {
			"matchCriteria": "ANY",
			"conditions": [
				{"property": "name", "operator": "EQ", "value": {"type": "string", "value": "Alice"}},
				{"nestedConditions": {"conditions": [
					{"property": "age", "operator": "GT", "value": {"type": "long", "value": 30}}
				]}}
			]
		}
	}`)

	cmd, out := captureCmd()
	require.NoError(t, runValidate(cmd, testLimits, path))
	assert.Contains(t, out.String(), `"valid": true`)
	assert.Contains(t, out.String(), `name EQ \"Alice\"`)
}

func TestRunValidateRejectsDeepTree(t *testing.T) {
	path := writeFile(t, "deep.json", `{"searchProperties": {"conditions": [
		{"nestedConditions": {"conditions": [
			{"nestedConditions": {"conditions": [
				{"nestedConditions": {"conditions": [
					{"property": "x", "operator": "NOT_NULL"}
				]}}
			]}}
		]}}
	]}}`)

	cmd, out := captureCmd()
	err := runValidate(cmd, testLimits, path)
	require.Error(t, err)
	assert.Contains(t, out.String(), `"valid": false`)
	assert.Contains(t, out.String(), "SEARCH-400-002")
}

func TestRunValidateMalformedFile(t *testing.T) {
	path := writeFile(t, "bad.json", `{"searchProperties": {"conditions": [{}]}}`)

	cmd, _ := captureCmd()
	err := runValidate(cmd, testLimits, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestRunExplainPrintsTrace(t *testing.T) {
	path := writeFile(t, "explain.json", `{
		"entity": {
			"guid": "6f1c1b4e-3f7a-4a53-8a57-0b4c8a3d2f10",
			"typeName": "Person",
			"properties": {"name": "Bob", "age": 41},
			"classifications": [{"name": "Confidential"}]
		},
		"search": {
			"typeName": "Person",
			"searchProperties": {
				"matchCriteria": "ANY",
				"conditions": [
					{"property": "name", "operator": "EQ", "value": "Alice"},
					{"property": "age", "operator": "GT", "value": 30}
				]
			},
			"searchClassifications": {
				"conditions": [{"name": "Confidential"}]
			}
		}
	}`)

	cmd, out := captureCmd()
	require.NoError(t, runExplain(cmd, path))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Greater(t, len(lines), 1)
	assert.Equal(t, "[+] ALL", lines[0])
	assert.Contains(t, lines, `    [-] name EQ "Alice"`)
	assert.Contains(t, lines, "    [+] age GT 30")
	assert.Contains(t, lines, "  [+] classifications ALL")
	assert.Equal(t, "MATCH", lines[len(lines)-1])
}

func TestRunExplainMissingFile(t *testing.T) {
	cmd, _ := captureCmd()
	err := runExplain(cmd, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["validate"])
	assert.True(t, names["explain"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
