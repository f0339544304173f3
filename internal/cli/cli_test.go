package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/service"
)

// testEnv points the CLI at a fresh jsonfile store and returns its data dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RAG_DATA_DIR", dir)
	t.Setenv("RAG_STORE_TYPE", "jsonfile")
	t.Setenv("RAG_LOG_LEVEL", "error")
	return dir
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "config.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so commands don't leak
// state between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestIngestAndAsk(t *testing.T) {
	dir := testEnv(t)
	docs := t.TempDir()
	writeFile(t, docs, "invoice.txt", "Payment is due within thirty days of the invoice date. Late fees apply afterwards.")
	writeFile(t, docs, ".hidden.txt", "never ingested")

	out, err := run(t, dir, "ingest", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "invoice.txt")
	assert.NotContains(t, out, ".hidden.txt")

	out, err = run(t, dir, "ask", "When is payment due?")
	require.NoError(t, err)
	assert.Contains(t, out, "Payment is due within thirty days")
	assert.Contains(t, out, "invoice.txt")

	out, err = run(t, dir, "search", "--json", "payment invoice")
	require.NoError(t, err)
	var res service.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "invoice.txt", res.Hits[0].SourceName)
}

func TestIngest_ReportsFailures(t *testing.T) {
	dir := testEnv(t)
	docs := t.TempDir()
	writeFile(t, docs, "good.txt", "Plain text is fine.")
	writeFile(t, docs, "empty.txt", "   ")

	out, err := run(t, dir, "ingest", docs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "good.txt")
}

func TestIngest_UnknownCorpusFailsUpfront(t *testing.T) {
	dir := testEnv(t)
	p := writeFile(t, t.TempDir(), "a.txt", "Some text.")

	_, err := run(t, dir, "ingest", "-c", "Nope", p)
	require.Error(t, err)

	out, err := run(t, dir, "sources", "list", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestCollectionsLifecycle(t *testing.T) {
	dir := testEnv(t)
	p := writeFile(t, t.TempDir(), "contract.txt", "The contract renews every year.")

	_, err := run(t, dir, "collections", "create", "--id", "legal", "Legal")
	require.NoError(t, err)
	_, err = run(t, dir, "collections", "create", "legal")
	require.Error(t, err, "names are unique regardless of case")

	_, err = run(t, dir, "ingest", "-c", "Legal", p)
	require.NoError(t, err)

	_, err = run(t, dir, "collections", "rename", "legal", "Legal-2024")
	require.NoError(t, err)

	out, err := run(t, dir, "collections", "list", "--json")
	require.NoError(t, err)
	var cols []service.CollectionView
	require.NoError(t, json.Unmarshal([]byte(out), &cols))
	require.Len(t, cols, 1)
	assert.Equal(t, service.CollectionView{ID: "legal", Name: "Legal-2024", Sources: 1}, cols[0])

	out, err = run(t, dir, "sources", "list", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "Legal-2024 (1)")
	assert.Contains(t, out, "contract.txt")

	_, err = run(t, dir, "collections", "delete", "Legal-2024")
	require.NoError(t, err)

	out, err = run(t, dir, "sources", "list", "--json")
	require.NoError(t, err)
	var sources []service.SourceView
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 1)
	assert.Empty(t, sources[0].CollectionIDs)
}

func TestSourcesAssignDeleteExport(t *testing.T) {
	dir := testEnv(t)
	p := writeFile(t, t.TempDir(), "notes.txt", "Meeting notes for Monday.")

	_, err := run(t, dir, "ingest", p)
	require.NoError(t, err)
	out, err := run(t, dir, "sources", "list", "--json")
	require.NoError(t, err)
	var sources []service.SourceView
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 1)
	id := sources[0].ID

	_, err = run(t, dir, "collections", "create", "Team")
	require.NoError(t, err)
	_, err = run(t, dir, "sources", "assign", "Team", id, "missing-id")
	require.Error(t, err, "one of two assignments fails")

	out, err = run(t, dir, "sources", "show", id)
	require.NoError(t, err)
	var shown service.SourceView
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, []string{"Team"}, shown.CollectionNames)

	exported := filepath.Join(t.TempDir(), "copy.txt")
	_, err = run(t, dir, "sources", "export", id, "-o", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, "Meeting notes for Monday.", string(data))

	_, err = run(t, dir, "sources", "delete", id)
	require.NoError(t, err)
	_, err = run(t, dir, "sources", "show", id)
	require.Error(t, err)
}

func TestSearch_NoResults(t *testing.T) {
	dir := testEnv(t)
	out, err := run(t, dir, "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestExpandPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	writeFile(t, filepath.Join(root, "sub"), "b.md", "b")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	writeFile(t, filepath.Join(root, ".git"), "config", "x")

	paths, err := expandPaths([]string{root})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.md"),
	}, paths)

	_, err = expandPaths([]string{filepath.Join(root, "missing")})
	assert.Error(t, err)
}

func TestReindex_RequiresIndex(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "reindex")
	assert.ErrorIs(t, err, service.ErrNoIndex)
}
