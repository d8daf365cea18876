// Package extractor implements the built-in extraction modules.
//
// Modules scan a bounded prefix of the dump (max_scan_bytes), except the
// string scan, which walks the whole dump under a distinct-string cap. Each
// returns an ordered Value payload plus typed artifacts. Modules are
// stateless values, so one instance may serve concurrent runs.
package extractor

import (
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/filter"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
)

// Module names.
const (
	NameStrings   = "strings"
	NamePatterns  = "patterns"
	NameNetwork   = "network"
	NameRegistry  = "registry"
	NameProcesses = "processes"
	NameStructure = "structure"
	NameSecrets   = "secrets"
)

// Defaults returns one instance of every built-in module. pf classifies
// recovered process names; nil uses the built-in rules.
func Defaults(logger utils.Logger, pf *filter.ProcessFilter) []plugin.Module {
	return []plugin.Module{
		NewStringsModule(),
		NewPatternsModule(),
		NewNetworkModule(),
		NewRegistryModule(),
		NewProcessesModule(logger, pf),
		NewStructureModule(),
		NewSecretsModule(logger),
	}
}

// DefaultRegistry builds a registry over Defaults.
func DefaultRegistry(logger utils.Logger, pf *filter.ProcessFilter) (*plugin.Registry, error) {
	return plugin.NewRegistry(Defaults(logger, pf)...)
}

// info carries the static identity shared by all modules.
type info struct {
	name     string
	priority int
	formats  []model.DumpFormat
}

func (i info) Name() string                         { return i.name }
func (i info) Priority() int                        { return i.priority }
func (i info) SupportedFormats() []model.DumpFormat { return i.formats }
