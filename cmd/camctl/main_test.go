package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func gerberDir(t *testing.T, b testutil.Board) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range testutil.GerberSet(b) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.Name), f.Content, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte{0, 1, 2}, 0o600))
	return dir
}

func TestAnalyzeDirectory(t *testing.T) {
	out, err := execute(t, "analyze", gerberDir(t, testutil.Default()), "--board", "ctrl")
	require.NoError(t, err)

	var rep struct {
		Status string `json:"status"`
		Summary struct {
			BoardWidth *float64 `json:"board_width"`
			LayerCount int      `json:"layer_count"`
		} `json:"summary"`
		Details struct {
			BoardName string `json:"board_name"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "completed", rep.Status)
	require.NotNil(t, rep.Summary.BoardWidth)
	assert.Equal(t, 50.0, *rep.Summary.BoardWidth)
	assert.Equal(t, 4, rep.Summary.LayerCount)
	assert.Equal(t, "ctrl", rep.Details.BoardName)
}

func TestAnalyzeFailOn(t *testing.T) {
	dir := gerberDir(t, testutil.Default())

	_, err := execute(t, "analyze", dir, "--min-trace-width", "0.2", "--fail-on", "warning", "-o", filepath.Join(t.TempDir(), "r.json"))
	assert.ErrorIs(t, err, errIssuesFound)

	_, err = execute(t, "analyze", dir, "--fail-on", "fatal")
	assert.ErrorContains(t, err, "--fail-on")
}

func TestAnalyzeRulesFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("min_trace_width: -1\n"), 0o600))
	_, err := execute(t, "analyze", gerberDir(t, testutil.Default()), "--rules", rules)
	assert.ErrorContains(t, err, "rules")

	require.NoError(t, os.WriteFile(rules, []byte("min_trace: 0.1\n"), 0o600))
	_, err = execute(t, "analyze", gerberDir(t, testutil.Default()), "--rules", rules)
	assert.Error(t, err)
}

func TestAnalyzeNarrative(t *testing.T) {
	out, err := execute(t, "analyze", gerberDir(t, testutil.Default()), "--format", "narrative", "--project", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "acme")
}

func TestAnalyzeUnrecognizedInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600))
	_, err := execute(t, "analyze", dir)
	assert.ErrorContains(t, err, "FormatUnrecognized")
}

func TestRulesPrintsDefaults(t *testing.T) {
	out, err := execute(t, "rules")
	require.NoError(t, err)

	var th camrules.Thresholds
	require.NoError(t, yaml.Unmarshal([]byte(out), &th))
	assert.Equal(t, camrules.Defaults(), th)
}
