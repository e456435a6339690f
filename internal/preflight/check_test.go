package preflight

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Stores.Dir = t.TempDir()
	cfg.Embedding.Provider = "static"
	return cfg
}

func TestCheckDump_Unconfigured(t *testing.T) {
	// Given: a configuration without a dump
	cfg := testConfig(t)

	// When: checking the dump file
	result := New(cfg).CheckDump()

	// Then: it warns instead of failing
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
	assert.Contains(t, result.Message, "no dump configured")
}

func TestCheckDump_Missing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dump.Path = filepath.Join(t.TempDir(), "absent.json")

	result := New(cfg).CheckDump()

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckDump_BadExtension(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dump.Path = filepath.Join(t.TempDir(), "dump.xml")
	require.NoError(t, os.WriteFile(cfg.Dump.Path, []byte("<xml/>"), 0o644))

	result := New(cfg).CheckDump()

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "unsupported extension")
}

func TestCheckDump_Pass(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dump.Path = filepath.Join(t.TempDir(), "latest-all.json")
	require.NoError(t, os.WriteFile(cfg.Dump.Path, []byte("[]"), 0o644))

	result := New(cfg).CheckDump()

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "latest-all.json")
}

func TestCheckDataDir_CreatesMissingDir(t *testing.T) {
	// Given: a data directory that does not exist yet
	cfg := testConfig(t)
	cfg.Stores.Dir = filepath.Join(t.TempDir(), "nested", "data")

	// When: checking it
	result := New(cfg).CheckDataDir()

	// Then: the directory is created and writable
	assert.Equal(t, StatusPass, result.Status)
	assert.DirExists(t, cfg.Stores.Dir)
}

func TestCheckDiskSpace_ScalesWithDump(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dump.Path = filepath.Join(t.TempDir(), "small.json")
	require.NoError(t, os.WriteFile(cfg.Dump.Path, []byte("[]"), 0o644))

	result := New(cfg).CheckDiskSpace()

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestCheckFileDescriptors(t *testing.T) {
	result := New(testConfig(t)).CheckFileDescriptors()

	assert.Equal(t, "file_descriptors", result.Name)
	assert.NotEmpty(t, result.Message)
}

func TestCheckEmbedder_Static(t *testing.T) {
	result := New(testConfig(t)).CheckEmbedder(context.Background())

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "static")
}

func TestCheckIndex_Local(t *testing.T) {
	result := New(testConfig(t)).CheckIndex(context.Background())

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "local index")
}

func TestCheckIndex_BadPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "postgres"
	cfg.Index.PostgresDSN = "://not-a-dsn"

	result := New(cfg).CheckIndex(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "bad postgres DSN")
}

func TestRunAll_OfflineLocalSetup(t *testing.T) {
	// Given: a static embedder and a local index in a fresh directory
	cfg := testConfig(t)

	// When: running every check
	results := New(cfg).RunAll(context.Background())

	// Then: only the unset dump warns, nothing critical fails
	require.Len(t, results, 6)
	assert.False(t, HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", SummaryStatus(results))
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{
			name: "all passing",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusPass},
			},
			want: "ready",
		},
		{
			name: "optional warning",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusWarn},
			},
			want: "ready_with_warnings",
		},
		{
			name: "required failure",
			results: []CheckResult{
				{Status: StatusFail, Required: true},
				{Status: StatusPass},
			},
			want: "failed",
		},
		{
			name: "optional failure",
			results: []CheckResult{
				{Status: StatusFail},
				{Status: StatusPass, Required: true},
			},
			want: "ready_with_warnings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SummaryStatus(tt.results))
		})
	}
}

func TestCheckStatus_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "dump_file", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"WARN"`)
}
