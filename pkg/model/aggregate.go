package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrResultFrozen is returned when writing to a returned AggregateResult.
	ErrResultFrozen = errors.New("aggregate result is frozen")
	// ErrSlotFilled is returned when a module's result is written twice.
	ErrSlotFilled = errors.New("plugin result already recorded")
)

// PluginResult is the outcome of one module in one run.
type PluginResult struct {
	Name          string           `json:"name"`
	Success       bool             `json:"success"`
	Data          Value            `json:"data,omitempty"`
	Error         string           `json:"error,omitempty"`
	ErrorCategory string           `json:"error_category,omitempty"`
	Artifacts     []ArtifactRecord `json:"artifacts,omitempty"`
	Duration      time.Duration    `json:"-"`
}

// MarshalJSON adds the duration in milliseconds and omits null data.
func (r PluginResult) MarshalJSON() ([]byte, error) {
	type alias PluginResult
	out := struct {
		alias
		Data       *Value  `json:"data,omitempty"`
		DurationMS float64 `json:"duration_ms"`
	}{
		alias:      alias(r),
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
	}
	if !r.Data.IsNull() {
		d := r.Data
		out.Data = &d
	}
	return json.Marshal(out)
}

// Succeeded builds a successful result.
func Succeeded(name string, data Value, artifacts []ArtifactRecord, d time.Duration) PluginResult {
	return PluginResult{Name: name, Success: true, Data: data, Artifacts: artifacts, Duration: d}
}

// Failed builds a failed result.
func Failed(name, category, message string, d time.Duration) PluginResult {
	return PluginResult{Name: name, Success: false, Error: message, ErrorCategory: category, Duration: d}
}

// ErrorEntry is a run-level error attributed to a module.
type ErrorEntry struct {
	Module   string `json:"module"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// WarningEntry is a run-level warning attributed to a module.
type WarningEntry struct {
	Module  string `json:"module"`
	Message string `json:"message"`
}

// RunMetadata is the metadata block of a report.
type RunMetadata struct {
	RunID       string
	ToolVersion string
	Timestamp   time.Time
	Dump        DumpMetadata
}

// MarshalJSON flattens the dump metadata and header fields.
func (m RunMetadata) MarshalJSON() ([]byte, error) {
	out := NewMap().
		Set("run_id", Str(m.RunID)).
		Set("tool_version", Str(m.ToolVersion)).
		Set("timestamp", Str(m.Timestamp.UTC().Format(time.RFC3339))).
		Set("file_path", Str(m.Dump.FilePath)).
		Set("file_name", Str(m.Dump.FileName)).
		Set("file_size", Int64(m.Dump.FileSize)).
		Set("format", Str(string(m.Dump.Format))).
		Set("access_mode", Str(string(m.Dump.AccessMode))).
		Set("header", Object(m.Dump.Header.Fields(m.Dump.Format)))
	return out.MarshalJSON()
}

// AggregateResult collects every module outcome of a run. The orchestrator
// is its only writer; once Freeze is called all writes fail.
type AggregateResult struct {
	mu       sync.RWMutex
	metadata RunMetadata
	results  map[string]PluginResult
	errors   []ErrorEntry
	warnings []WarningEntry
	frozen   bool
}

// NewAggregateResult creates an empty result for a run.
func NewAggregateResult(meta RunMetadata) *AggregateResult {
	return &AggregateResult{
		metadata: meta,
		results:  make(map[string]PluginResult),
	}
}

// Metadata returns the run metadata.
func (a *AggregateResult) Metadata() RunMetadata {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metadata
}

// SetResult records a module outcome. Each module name may be written once.
func (a *AggregateResult) SetResult(r PluginResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrResultFrozen
	}
	if _, exists := a.results[r.Name]; exists {
		return fmt.Errorf("%w: %s", ErrSlotFilled, r.Name)
	}
	a.results[r.Name] = r
	return nil
}

// AddError appends a run-level error.
func (a *AggregateResult) AddError(module, message, category string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrResultFrozen
	}
	a.errors = append(a.errors, ErrorEntry{Module: module, Message: message, Category: category})
	return nil
}

// AddWarning appends a run-level warning.
func (a *AggregateResult) AddWarning(module, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrResultFrozen
	}
	a.warnings = append(a.warnings, WarningEntry{Module: module, Message: message})
	return nil
}

// Freeze rejects all further writes.
func (a *AggregateResult) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// Frozen reports whether the result accepts writes.
func (a *AggregateResult) Frozen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozen
}

// Result looks up a module outcome by name.
func (a *AggregateResult) Result(name string) (PluginResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.results[name]
	return r, ok
}

// ModuleNames returns the names of all recorded modules, sorted.
func (a *AggregateResult) ModuleNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.results))
	for name := range a.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Errors returns a copy of the error entries.
func (a *AggregateResult) Errors() []ErrorEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]ErrorEntry(nil), a.errors...)
}

// Warnings returns a copy of the warning entries.
func (a *AggregateResult) Warnings() []WarningEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]WarningEntry(nil), a.warnings...)
}

// Artifacts returns every artifact of every successful module, grouped by
// module in name order.
func (a *AggregateResult) Artifacts() []ArtifactRecord {
	var out []ArtifactRecord
	for _, name := range a.ModuleNames() {
		r, _ := a.Result(name)
		out = append(out, r.Artifacts...)
	}
	return out
}

// Summary condenses the run into an ordered map: module counts, error and
// warning counts, and each module's "summary" or "statistics" entry.
func (a *AggregateResult) Summary() *Map {
	names := a.ModuleNames()
	succeeded := 0
	modules := NewMap()
	for _, name := range names {
		r, _ := a.Result(name)
		entry := NewMap().Set("success", Bool(r.Success))
		if r.Success {
			succeeded++
			entry.Set("artifacts", Int(len(r.Artifacts)))
			if s, ok := r.Data.Get("summary"); ok {
				entry.Set("summary", s)
			} else if s, ok := r.Data.Get("statistics"); ok {
				entry.Set("summary", s)
			}
		} else {
			entry.Set("error_category", Str(r.ErrorCategory))
		}
		modules.Set(name, Object(entry))
	}

	meta := a.Metadata()
	return NewMap().
		Set("run_id", Str(meta.RunID)).
		Set("file_name", Str(meta.Dump.FileName)).
		Set("format", Str(string(meta.Dump.Format))).
		Set("modules_run", Int(len(names))).
		Set("modules_succeeded", Int(succeeded)).
		Set("errors", Int(len(a.Errors()))).
		Set("warnings", Int(len(a.Warnings()))).
		Set("modules", Object(modules))
}

type aggregateJSON struct {
	Metadata RunMetadata             `json:"metadata"`
	Results  map[string]PluginResult `json:"results"`
	Errors   []ErrorEntry            `json:"errors"`
	Warnings []WarningEntry          `json:"warnings"`
}

// MarshalJSON encodes the report. Result keys are emitted sorted.
func (a *AggregateResult) MarshalJSON() ([]byte, error) {
	a.mu.RLock()
	out := aggregateJSON{
		Metadata: a.metadata,
		Results:  make(map[string]PluginResult, len(a.results)),
		Errors:   append([]ErrorEntry{}, a.errors...),
		Warnings: append([]WarningEntry{}, a.warnings...),
	}
	for k, v := range a.results {
		out.Results[k] = v
	}
	a.mu.RUnlock()
	return json.Marshal(out)
}
