package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAG_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "window", cfg.Chunker.Type)
	assert.Equal(t, 1200, cfg.Chunker.Size)
	assert.Equal(t, 150, cfg.Chunker.Overlap)
	assert.Equal(t, 50, cfg.Embedder.BatchSize)
	assert.Equal(t, 8, cfg.Query.TopK)
	assert.Equal(t, "index", cfg.Ingest.WebsitePolicy)
	assert.Equal(t, filepath.Join(dir, "corpus.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "uploads"), cfg.UploadsDir())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
store:
  type: jsonfile
embedder:
  type: openai
  openai:
    model: text-embedding-3-large
generator:
  type: extractive
  max_sentences: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jsonfile", cfg.Store.Type)
	assert.Equal(t, filepath.Join(dir, "corpus.json"), cfg.Store.Path)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, 4, cfg.Generator.MaxSentences)
	// Groups the file leaves out keep their defaults.
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "`+filepath.ToSlash(dir)+`"

[index]
type = "qdrant"

[index.qdrant]
host = "qdrant.internal"
port = 6334

[query]
top_k = 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Index.Type)
	assert.Equal(t, "qdrant.internal", cfg.Index.Qdrant.Host)
	assert.Equal(t, 3, cfg.Query.TopK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\nserver:\n  addr: 0.0.0.0:9000\n"), 0o644))

	t.Setenv("RAG_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("RAG_SERVER_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("RAG_EMBEDDER_OLLAMA_MODEL", "mxbai-embed-large")
	t.Setenv("RAG_INGEST_WEBSITE_POLICY", "metadata-only")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedder.Ollama.Model)
	assert.Equal(t, "metadata-only", cfg.Ingest.WebsitePolicy)
}

func TestLoad_IgnoresUnprefixedEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAG_DATA_DIR", dir)
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("HOST", "leaked.example")
	t.Setenv("PORT", "1")
	t.Setenv("MODEL", "leaked-model")
	t.Setenv("ADDR", "0.0.0.0:1")
	t.Setenv("TYPE", "memory")
	t.Setenv("LEVEL", "debug")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "corpus.db"), cfg.Store.Path)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEqual(t, "leaked.example", cfg.Index.Qdrant.Host)
	assert.NotEqual(t, 1, cfg.Index.Qdrant.Port)
	assert.NotEqual(t, "leaked-model", cfg.Embedder.Ollama.Model)
}

func TestLoad_PrefixedStorePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAG_DATA_DIR", dir)
	t.Setenv("RAG_STORE_PATH", filepath.Join(dir, "elsewhere.db"))
	t.Setenv("RAG_INDEX_QDRANT_USE_TLS", "true")
	t.Setenv("RAG_QUERY_TOP_K", "3")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "elsewhere.db"), cfg.Store.Path)
	assert.True(t, cfg.Index.Qdrant.UseTLS)
	assert.Equal(t, 3, cfg.Query.TopK)
}

func TestLoad_RejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\nstore:\n  type: postgres\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoad_RejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTripTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg := defaultConfig()
	cfg.DataDir = dir
	cfg.Query.TopK = 12

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Query.TopK)
	assert.Equal(t, dir, got.DataDir)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("RAG_DATA_DIR", filepath.Join(home, "data"))
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "rag", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, "sqlite", cfg.Store.Type)
}
