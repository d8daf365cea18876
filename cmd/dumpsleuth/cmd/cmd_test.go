package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/internal/repository"
	"github.com/dump-sleuth/internal/testutil"
	"github.com/dump-sleuth/pkg/config"
)

const dumpBody = "\x00HKLM\\Software\\Microsoft\\Windows\\CurrentVersion\\Run\\Updater\x00 http://evil.example.com/drop 8.8.8.8 \x00"

type env struct {
	dir       string
	config    string
	reportDir string
	dbPath    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:       dir,
		config:    filepath.Join(dir, "dumpsleuth.yaml"),
		reportDir: filepath.Join(dir, "reports"),
		dbPath:    filepath.Join(dir, "runs.db"),
	}
	yaml := fmt.Sprintf(`output:
  dir: %s
database:
  type: sqlite
  database: %s
log:
  level: error
`, e.reportDir, e.dbPath)
	require.NoError(t, os.WriteFile(e.config, []byte(yaml), 0644))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCommand(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	a.teardown()
	return out.String(), err
}

func TestAnalyze_Summary(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteMinidump(t, e.dir, "crash.dmp", dumpBody)

	out, err := e.run(t, "analyze", path, "--modules", "strings,registry,network")
	require.NoError(t, err)

	assert.Contains(t, out, "crash.dmp")
	assert.Contains(t, out, "minidump")
	for _, m := range []string{"strings", "registry", "network"} {
		assert.Contains(t, out, m)
	}
	assert.NotContains(t, out, "failed")
	assert.Contains(t, out, "report:")

	reports, err := filepath.Glob(filepath.Join(e.reportDir, "crash-*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestAnalyze_JSONWithoutReport(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteMinidump(t, e.dir, "crash.dmp", dumpBody)

	out, err := e.run(t, "analyze", path, "-m", "network", "--json", "--no-report")
	require.NoError(t, err)

	var report struct {
		Metadata map[string]interface{}            `json:"metadata"`
		Results  map[string]map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "minidump", report.Metadata["format"])
	assert.Equal(t, "dev", report.Metadata["tool_version"])
	require.Contains(t, report.Results, "network")
	assert.Equal(t, true, report.Results["network"]["success"])

	assert.NoDirExists(t, e.reportDir)
}

func TestAnalyze_Errors(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "analyze", filepath.Join(e.dir, "missing.dmp"))
	assert.Error(t, err)

	_, err = e.run(t, "analyze", testutil.WriteMinidump(t, e.dir, "a.dmp", dumpBody), "--modules", "nope")
	assert.Error(t, err)

	_, err = e.run(t, "analyze")
	assert.Error(t, err)
}

func TestAnalyze_RecoveryMode(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "analyze", filepath.Join(e.dir, "missing.dmp"), "--recovery", "-m", "strings", "--no-report")
	require.NoError(t, err)
	assert.Contains(t, out, "errors:")
	assert.Contains(t, out, "parser")
}

func TestBatch(t *testing.T) {
	e := newEnv(t)
	cases := filepath.Join(e.dir, "cases")
	testutil.WriteMinidump(t, cases, "one.dmp", dumpBody)
	testutil.WriteMinidump(t, filepath.Join(cases, "nested"), "two.dmp", dumpBody)
	require.NoError(t, os.WriteFile(filepath.Join(cases, "notes.txt"), []byte("x"), 0644))

	out, err := e.run(t, "batch", cases, "--pattern", "*.dmp", "--workers", "2", "-m", "strings")
	require.NoError(t, err)
	assert.Contains(t, out, "1 files, 1 ok, 0 failed")

	out, err = e.run(t, "batch", cases, "--pattern", "*.dmp", "--recursive", "-m", "strings")
	require.NoError(t, err)
	assert.Contains(t, out, "one.dmp")
	assert.Contains(t, out, filepath.Join("nested", "two.dmp"))
	assert.Contains(t, out, "2 files, 2 ok, 0 failed")

	out, err = e.run(t, "batch", cases, "--pattern", "*.raw")
	require.NoError(t, err)
	assert.Contains(t, out, "no files matching")
}

func TestInfo(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "info", testutil.WriteMinidump(t, e.dir, "crash.dmp", dumpBody))
	require.NoError(t, err)

	assert.Contains(t, out, "minidump")
	assert.Contains(t, out, "signature")
	assert.Contains(t, out, "MDMP")
	assert.Contains(t, out, "stream_count")
	assert.Contains(t, out, "1700000000")
}

func TestModules(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "modules")
	require.NoError(t, err)

	for _, name := range config.DefaultModules {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, " no ")
}

func TestRuns(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteMinidump(t, e.dir, "host.dmp", dumpBody)

	_, err := e.run(t, "analyze", path, "--persist", "-m", "registry,network")
	require.NoError(t, err)

	db, err := repository.NewGormDB(&config.DatabaseConfig{Type: "sqlite", Database: e.dbPath})
	require.NoError(t, err)
	repos, err := repository.NewRepositories(context.Background(), db)
	require.NoError(t, err)
	runs, err := repos.Runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, repos.Close())
	require.Len(t, runs, 1)
	runID := runs[0].RunID

	out, err := e.run(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "host.dmp")

	out, err = e.run(t, "runs", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "registry")
	assert.Contains(t, out, "network")

	out, err = e.run(t, "runs", "show", runID, "--path", "metadata.format")
	require.NoError(t, err)
	assert.Equal(t, "minidump\n", out)

	out, err = e.run(t, "runs", "show", runID, "--path", "results.registry.success")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = e.run(t, "runs", "show", runID, "--path", "results.nope")
	assert.Error(t, err)

	out, err = e.run(t, "runs", "artifacts", "--category", "persistence", "--run", runID)
	require.NoError(t, err)
	assert.Contains(t, out, `CurrentVersion\Run`)

	_, err = e.run(t, "runs", "artifacts", "--risk", "extreme")
	assert.Error(t, err)

	out, err = e.run(t, "runs", "delete", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run "+runID)

	_, err = e.run(t, "runs", "show", runID)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

func TestReport(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteMinidump(t, e.dir, "crash.dmp", dumpBody)

	_, err := e.run(t, "analyze", path, "-m", "strings,network", "--compress", "gzip")
	require.NoError(t, err)
	reports, err := filepath.Glob(filepath.Join(e.reportDir, "crash-*.json.gz"))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	out, err := e.run(t, "report", reports[0])
	require.NoError(t, err)
	assert.Contains(t, out, "crash.dmp")
	assert.Contains(t, out, "minidump")
	assert.Contains(t, out, "network")
	assert.Contains(t, out, "strings")

	out, err = e.run(t, "report", reports[0], "--path", "results.network.success")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	notJSON := filepath.Join(e.dir, "notes.txt")
	require.NoError(t, os.WriteFile(notJSON, []byte("plain text"), 0644))
	_, err = e.run(t, "report", notJSON)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version dev")
	assert.Contains(t, out, "Go Version:")
}

func TestOverrides_OnlyChangedFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = "from-config"
	cfg.Analysis.Parallel = true

	cmd := newAnalyzeCommand(&app{cfg: cfg})
	require.NoError(t, cmd.ParseFlags([]string{"--compress", "zstd", "--sequential", "-m", "strings,secrets"}))

	var ov overrides
	ov.compress, ov.sequential, ov.modules = "zstd", true, []string{"strings", "secrets"}
	ov.apply(cmd.Flags(), cfg)

	assert.Equal(t, "zstd", cfg.Output.Compress)
	assert.False(t, cfg.Analysis.Parallel)
	assert.Equal(t, []string{"strings", "secrets"}, cfg.Modules.Enabled)
	assert.Equal(t, "from-config", cfg.Output.Dir)
	assert.False(t, cfg.Output.Upload)
}

func TestTable_Render(t *testing.T) {
	tbl := newTable("NAME", "COUNT")
	tbl.add("strings", "12")
	tbl.add("a", "3")

	var buf bytes.Buffer
	tbl.render(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME     COUNT", lines[0])
	assert.Equal(t, "strings  12", lines[1])
	assert.Equal(t, "a        3", lines[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "a b", truncate("a\x00b", 10))
}
