package model

import "time"

// Extraction defaults.
const (
	DefaultMinStringLength      = 4
	DefaultMaxStringLength      = 256
	DefaultMaxScanBytes         = 10 * 1024 * 1024
	DefaultChunkSize            = 1024 * 1024
	DefaultCategoryCap          = 200
	DefaultSignalCap            = 50
	DefaultMaxProcessCandidates = 1000
	DefaultMaxDistinctStrings   = 200000
	DefaultModuleTimeout        = 5 * time.Minute
)

// ExtractionOptions is the mutable input used to build an ExtractionContext.
// Zero numeric fields take their defaults.
type ExtractionOptions struct {
	MinStringLength      int
	MaxStringLength      int
	MaxScanBytes         int64
	ChunkSize            int64
	CategoryCap          int
	SignalCap            int
	MaxProcessCandidates int
	MaxDistinctStrings   int
	IncludeCategories    []string
	ExcludeCategories    []string
	ModuleTimeout        time.Duration
}

// ExtractionContext is the read-only configuration snapshot handed to every
// module of a run.
type ExtractionContext struct {
	minStringLength      int
	maxStringLength      int
	maxScanBytes         int64
	chunkSize            int64
	categoryCap          int
	signalCap            int
	maxProcessCandidates int
	maxDistinctStrings   int
	include              []string
	exclude              []string
	moduleTimeout        time.Duration
}

// NewExtractionContext snapshots opts. Slices are copied.
func NewExtractionContext(opts ExtractionOptions) *ExtractionContext {
	ec := &ExtractionContext{
		minStringLength:      orDefault(opts.MinStringLength, DefaultMinStringLength),
		maxStringLength:      orDefault(opts.MaxStringLength, DefaultMaxStringLength),
		maxScanBytes:         opts.MaxScanBytes,
		chunkSize:            opts.ChunkSize,
		categoryCap:          orDefault(opts.CategoryCap, DefaultCategoryCap),
		signalCap:            orDefault(opts.SignalCap, DefaultSignalCap),
		maxProcessCandidates: orDefault(opts.MaxProcessCandidates, DefaultMaxProcessCandidates),
		maxDistinctStrings:   orDefault(opts.MaxDistinctStrings, DefaultMaxDistinctStrings),
		include:              append([]string(nil), opts.IncludeCategories...),
		exclude:              append([]string(nil), opts.ExcludeCategories...),
		moduleTimeout:        opts.ModuleTimeout,
	}
	if ec.maxScanBytes <= 0 {
		ec.maxScanBytes = DefaultMaxScanBytes
	}
	if ec.chunkSize <= 0 {
		ec.chunkSize = DefaultChunkSize
	}
	if ec.moduleTimeout < 0 {
		ec.moduleTimeout = 0
	}
	return ec
}

// DefaultExtractionContext returns a context with every default applied
// and the default module timeout.
func DefaultExtractionContext() *ExtractionContext {
	return NewExtractionContext(ExtractionOptions{ModuleTimeout: DefaultModuleTimeout})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (c *ExtractionContext) MinStringLength() int      { return c.minStringLength }
func (c *ExtractionContext) MaxStringLength() int      { return c.maxStringLength }
func (c *ExtractionContext) MaxScanBytes() int64       { return c.maxScanBytes }
func (c *ExtractionContext) ChunkSize() int64          { return c.chunkSize }
func (c *ExtractionContext) CategoryCap() int          { return c.categoryCap }
func (c *ExtractionContext) SignalCap() int            { return c.signalCap }
func (c *ExtractionContext) MaxProcessCandidates() int { return c.maxProcessCandidates }

// MaxDistinctStrings bounds the distinct strings kept by the string scan.
func (c *ExtractionContext) MaxDistinctStrings() int { return c.maxDistinctStrings }

// ModuleTimeout is the per-module deadline. Zero disables it.
func (c *ExtractionContext) ModuleTimeout() time.Duration { return c.moduleTimeout }

// IncludeCategories returns a copy of the include filter.
func (c *ExtractionContext) IncludeCategories() []string {
	return append([]string(nil), c.include...)
}

// ExcludeCategories returns a copy of the exclude filter.
func (c *ExtractionContext) ExcludeCategories() []string {
	return append([]string(nil), c.exclude...)
}

// CategoryAllowed applies the include and exclude filters to a category
// name. An empty include list admits everything not excluded.
func (c *ExtractionContext) CategoryAllowed(name string) bool {
	for _, e := range c.exclude {
		if e == name {
			return false
		}
	}
	if len(c.include) == 0 {
		return true
	}
	for _, i := range c.include {
		if i == name {
			return true
		}
	}
	return false
}
