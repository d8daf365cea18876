package analyzer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/extractor"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/internal/testutil"
	"github.com/dump-sleuth/pkg/config"
	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
)

type stubModule struct {
	name string
	fn   func(ctx context.Context) (*plugin.Output, error)
}

func (s stubModule) Name() string                         { return s.name }
func (s stubModule) Priority() int                        { return 0 }
func (s stubModule) SupportedFormats() []model.DumpFormat { return nil }
func (s stubModule) Analyze(ctx context.Context, _ dump.Accessor, _ *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	return s.fn(ctx)
}

func TestAnalyze_Minidump(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "crash.dmp",
		testutil.Minidump("\x00HKLM\\Software\\Microsoft\\Windows\\CurrentVersion\\Run\\Foo\x00 http://evil.example.com/x \x00"))

	core, logs := observer.New(zapcore.InfoLevel)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := New(config.Default(),
		WithLogger(utils.NewZapLoggerFromCore(core)),
		WithVersion("1.2.3"),
		WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	agg, err := a.Analyze(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.Frozen())

	meta := agg.Metadata()
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, "1.2.3", meta.ToolVersion)
	assert.Equal(t, fixed, meta.Timestamp)
	assert.Equal(t, model.FormatMinidump, meta.Dump.Format)
	assert.Equal(t, "crash.dmp", meta.Dump.FileName)
	assert.EqualValues(t, 3, meta.Dump.Header.StreamCount)

	assert.ElementsMatch(t, config.DefaultModules, agg.ModuleNames())
	for _, name := range agg.ModuleNames() {
		r, _ := agg.Result(name)
		assert.True(t, r.Success, "%s: %s", name, r.Error)
	}
	assert.Empty(t, agg.Errors())

	reg, ok := agg.Result(extractor.NameRegistry)
	require.True(t, ok)
	n, _ := reg.Data.Path("statistics", "persistence_indicators")
	count, _ := n.AsInt()
	assert.EqualValues(t, 1, count)

	persist := testutil.AssertArtifact(t, agg.Artifacts(), "persistence", `CurrentVersion\Run`)
	assert.Equal(t, model.RiskMedium, persist.Risk)
	testutil.AssertArtifact(t, agg.Artifacts(), "url", "evil.example.com")

	assert.Equal(t, 1, logs.FilterMessageSnippet("analysis finished").Len())
}

func TestAnalyze_Sequential(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Parallel = false
	cfg.Modules.Enabled = []string{extractor.NameStrings, extractor.NameStructure}

	a, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, a.Modules(), 2)
	assert.Equal(t, extractor.NameStrings, a.Modules()[0].Name())

	agg, err := a.Analyze(context.Background(), testutil.WriteFile(t, t.TempDir(), "x.bin", []byte("HELLOWORLD")))
	require.NoError(t, err)
	assert.Equal(t, []string{extractor.NameStrings, extractor.NameStructure}, agg.ModuleNames())
	assert.Equal(t, model.FormatUnknown, agg.Metadata().Dump.Format)
}

func TestAnalyze_MissingFile(t *testing.T) {
	a, err := New(config.Default())
	require.NoError(t, err)

	agg, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.dmp"))
	require.Error(t, err)
	assert.Nil(t, agg)
	assert.True(t, apperrors.IsAccessError(err))
}

func TestAnalyze_RecoveryMode(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.RecoveryMode = true
	a, err := New(cfg)
	require.NoError(t, err)

	agg, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.dmp"))
	require.NoError(t, err)

	errs := agg.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, dump.ParserModule, errs[0].Module)
	assert.Equal(t, "AccessError", errs[0].Category)
	assert.Equal(t, model.AccessDegraded, agg.Metadata().Dump.AccessMode)
	assert.Len(t, agg.ModuleNames(), len(config.DefaultModules))
}

func TestAnalyze_TooLargeIsFatalEvenInRecovery(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.MaxFileSize = "1KB"
	cfg.Analysis.RecoveryMode = true
	a, err := New(cfg)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), testutil.WriteFile(t, t.TempDir(), "big.dmp", make([]byte, 4096)))
	require.Error(t, err)
	assert.True(t, apperrors.IsAccessError(err))
}

func TestAnalyze_MalformedHeaderWarns(t *testing.T) {
	a, err := New(config.Default())
	require.NoError(t, err)

	agg, err := a.Analyze(context.Background(), testutil.WriteFile(t, t.TempDir(), "short.dmp", []byte("MDMP\x01")))
	require.NoError(t, err)

	assert.Equal(t, model.FormatUnknown, agg.Metadata().Dump.Format)
	warnings := agg.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, dump.ParserModule, warnings[0].Module)
}

func TestAnalyze_ModuleFailureIsIsolated(t *testing.T) {
	reg, err := plugin.NewRegistry(
		stubModule{name: "ok", fn: func(context.Context) (*plugin.Output, error) {
			return &plugin.Output{Data: model.Str("fine")}, nil
		}},
		stubModule{name: "boom", fn: func(context.Context) (*plugin.Output, error) {
			return nil, errors.New("bad table")
		}},
	)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Modules.Enabled = []string{"ok", "boom"}
	a, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	agg, err := a.Analyze(context.Background(), testutil.WriteFile(t, t.TempDir(), "x.bin", []byte("data")))
	require.NoError(t, err)

	ok, _ := agg.Result("ok")
	assert.True(t, ok.Success)
	boom, _ := agg.Result("boom")
	assert.False(t, boom.Success)
	assert.Equal(t, "PluginError", boom.ErrorCategory)
	require.Len(t, agg.Errors(), 1)
	assert.Equal(t, "boom", agg.Errors()[0].Module)
}

// lingeringModule keeps reading its view of the dump after its deadline.
type lingeringModule struct {
	linger time.Duration
	sum    chan int
}

func (lingeringModule) Name() string                         { return "lingering" }
func (lingeringModule) Priority() int                        { return 0 }
func (lingeringModule) SupportedFormats() []model.DumpFormat { return nil }
func (m lingeringModule) Analyze(_ context.Context, acc dump.Accessor, _ *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	view := acc.Read(0, -1)
	time.Sleep(m.linger)
	sum := 0
	for _, b := range view {
		sum += int(b)
	}
	m.sum <- sum
	return nil, nil
}

func TestAnalyze_TimedOutModuleOutlivesRun(t *testing.T) {
	mod := lingeringModule{linger: 300 * time.Millisecond, sum: make(chan int, 1)}
	reg, err := plugin.NewRegistry(mod)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Modules.Enabled = []string{"lingering"}
	cfg.Analysis.UseMmap = true
	cfg.Analysis.MmapThreshold = "1KB"
	cfg.Analysis.ModuleTimeout = "50ms"
	a, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	data := make([]byte, 1<<20)
	for i := range data {
		data[i] = 1
	}
	agg, err := a.Analyze(context.Background(), testutil.WriteFile(t, t.TempDir(), "big.bin", data))
	require.NoError(t, err)

	res, ok := agg.Result("lingering")
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Equal(t, "TimeoutError", res.ErrorCategory)

	select {
	case sum := <-mod.sum:
		assert.Equal(t, len(data), sum)
	case <-time.After(5 * time.Second):
		t.Fatal("module never finished")
	}
}

func TestAnalyze_ServiceNames(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "crash.dmp", testutil.Minidump("\x00agent.exe\x00"))

	classOf := func(names ...string) string {
		cfg := config.Default()
		cfg.Modules.Enabled = []string{extractor.NameProcesses}
		cfg.Analysis.ServiceNames = names
		a, err := New(cfg)
		require.NoError(t, err)
		agg, err := a.Analyze(context.Background(), path)
		require.NoError(t, err)
		return testutil.AssertArtifact(t, agg.Artifacts(), "process", "agent.exe").Detail
	}

	assert.Equal(t, "service", classOf("Agent.exe"))
	// configured names do not leak into later analyzers
	assert.Equal(t, "user", classOf())
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown module", func(c *config.Config) { c.Modules.Enabled = []string{"strings", "nope"} }},
		{"duplicate module", func(c *config.Config) { c.Modules.Enabled = []string{"strings", "strings"} }},
		{"bad size", func(c *config.Config) { c.Analysis.MaxScanBytes = "lots" }},
		{"no workers", func(c *config.Config) { c.Analysis.MaxWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigError(err), err.Error())
		})
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	assert.Len(t, a.Modules(), len(config.DefaultModules))
	assert.Equal(t, model.DefaultMaxScanBytes, int(a.ExtractionContext().MaxScanBytes()))
}
