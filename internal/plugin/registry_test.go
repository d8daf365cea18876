package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

// fakeModule is a configurable Module for registry and orchestrator tests.
type fakeModule struct {
	name     string
	priority int
	formats  []model.DumpFormat
	analyze  func(ctx context.Context, acc dump.Accessor) (*Output, error)
}

func (f *fakeModule) Name() string                         { return f.name }
func (f *fakeModule) Priority() int                        { return f.priority }
func (f *fakeModule) SupportedFormats() []model.DumpFormat { return f.formats }

func (f *fakeModule) Analyze(ctx context.Context, acc dump.Accessor, _ *model.ExtractionContext, _ model.DumpMetadata) (*Output, error) {
	if f.analyze == nil {
		return &Output{Data: model.Str(f.name)}, nil
	}
	return f.analyze(ctx, acc)
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(&fakeModule{name: "a"}, &fakeModule{name: "a"})
	require.ErrorIs(t, err, ErrDuplicateModule)

	reg, err := NewRegistry(&fakeModule{name: "a"})
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Register(&fakeModule{name: "a"}), ErrDuplicateModule)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Ordered(t *testing.T) {
	reg, err := NewRegistry(
		&fakeModule{name: "processes"},
		&fakeModule{name: "strings", priority: 20},
		&fakeModule{name: "registry", priority: 15},
		&fakeModule{name: "patterns", priority: 15},
		&fakeModule{name: "network", priority: 10},
	)
	require.NoError(t, err)

	var names []string
	for _, m := range reg.Ordered() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"strings", "patterns", "registry", "network", "processes"}, names)
}

func TestRegistry_Select(t *testing.T) {
	reg, err := NewRegistry(&fakeModule{name: "a"}, &fakeModule{name: "b"}, &fakeModule{name: "c"})
	require.NoError(t, err)

	sub, err := reg.Select([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Len())
	_, ok := sub.Get("b")
	assert.False(t, ok)

	_, err = reg.Select([]string{"a", "zzz"})
	assert.ErrorIs(t, err, ErrUnknownModule)

	_, err = reg.Select([]string{"a", "a"})
	assert.ErrorIs(t, err, ErrDuplicateModule)
}

func TestSupports(t *testing.T) {
	all := &fakeModule{name: "any"}
	windows := &fakeModule{name: "win", formats: []model.DumpFormat{model.FormatMinidump, model.FormatFullDump}}

	assert.True(t, Supports(all, model.FormatUnknown))
	assert.True(t, Supports(windows, model.FormatFullDump))
	assert.False(t, Supports(windows, model.FormatELFCore))
}
