package extractor

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/filter"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
)

// OS flavors used to pick a recovery strategy.
const (
	OSWindows = "windows"
	OSLinux   = "linux"
	OSUnknown = "unknown"
)

// Pool-tag layout. These offsets are rough approximations with no
// per-build validation; names recovered through them are best effort.
const (
	procChunkSize   = 1 << 20
	procOverlap     = 1024
	procWindowStart = 0x2e0
	procWindowSize  = 0x500
	procNameOffset  = 0x450
	procNameSize    = 16
	osSniffBytes    = 1 << 20
)

var (
	procPoolTag = []byte("Proc")

	exeTokenRe = regexp.MustCompile(`([a-zA-Z0-9_\-]+\.exe)\x00`)
	commRe     = regexp.MustCompile(`[\x20-\x7e]{1,15}\x00`)
	cmdlineRe  = regexp.MustCompile(`/[a-zA-Z0-9_/\-]+(?:\s+[a-zA-Z0-9_\-=]+)*\x00`)

	genericRes = []*regexp.Regexp{
		exeTokenRe,
		regexp.MustCompile(`([a-zA-Z0-9_\-]+\.dll)\x00`),
		regexp.MustCompile(`/usr/bin/([a-zA-Z0-9_\-]+)\x00`),
		regexp.MustCompile(`/sbin/([a-zA-Z0-9_\-]+)\x00`),
		regexp.MustCompile(`com\.([a-zA-Z0-9_\-\.]+)`),
	}

	windowsMarkers = [][]byte{[]byte("Windows"), []byte("WINDOWS"), []byte("ntoskrnl"), []byte("NTOSKRNL")}
	linuxMarkers   = [][]byte{[]byte("Linux"), []byte("linux"), []byte("/proc/"), []byte("/sys/")}
)

// ProcessCandidate is one recovered process name.
type ProcessCandidate struct {
	PID         int
	Name        string
	ParentPID   int
	CommandLine string
	Offset      int64
	Hits        int
}

// ProcessesModule recovers process names heuristically.
type ProcessesModule struct {
	info
	log    utils.Logger
	filter *filter.ProcessFilter
}

// NewProcessesModule creates the processes module. A nil filter gets the
// built-in rules.
func NewProcessesModule(logger utils.Logger, pf *filter.ProcessFilter) *ProcessesModule {
	if pf == nil {
		pf = filter.NewProcessFilter()
	}
	return &ProcessesModule{
		info:   info{name: NameProcesses},
		log:    utils.OrNull(logger).WithField("module", NameProcesses),
		filter: pf,
	}
}

// DetectOS picks the recovery strategy from the format, then from markers
// in the first megabyte.
func DetectOS(acc dump.Accessor, format model.DumpFormat) string {
	switch format {
	case model.FormatMinidump, model.FormatFullDump:
		return OSWindows
	case model.FormatELFCore:
		return OSLinux
	}
	sample := acc.Read(0, osSniffBytes)
	for _, m := range windowsMarkers {
		if bytes.Contains(sample, m) {
			return OSWindows
		}
	}
	for _, m := range linuxMarkers {
		if bytes.Contains(sample, m) {
			return OSLinux
		}
	}
	return OSUnknown
}

// Analyze implements plugin.Module.
func (m *ProcessesModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, meta model.DumpMetadata) (*plugin.Output, error) {
	osType := DetectOS(acc, meta.Format)
	m.log.Debug("recovering processes with %s strategy", osType)

	r := &processRecovery{
		acc:    acc,
		limit:  ec.MaxProcessCandidates(),
		prefix: min(acc.Size(), ec.MaxScanBytes()),
		index:  make(map[string]int),
	}
	var err error
	switch osType {
	case OSWindows:
		err = r.windows(ctx)
	case OSLinux:
		err = r.linux(ctx)
	default:
		r.generic()
	}
	if err != nil {
		return nil, err
	}

	return m.render(osType, r), nil
}

func (m *ProcessesModule) render(osType string, r *processRecovery) *plugin.Output {
	names := collections.NewCounter[string]()
	classes := collections.NewCounter[string]()
	hasSystem := false

	procs := make([]model.Value, len(r.found))
	artifacts := make([]model.ArtifactRecord, len(r.found))
	tree := model.NewMap()
	children := make(map[int][]model.Value)
	var parents []int

	for i, p := range r.found {
		class := m.filter.Classify(p.Name).String()
		names.Add(p.Name, p.Hits)
		classes.Inc(class)
		hasSystem = hasSystem || filter.LooksSystem(p.Name)

		procs[i] = model.Object(model.NewMap().
			Set("pid", model.Int(p.PID)).
			Set("name", model.Str(p.Name)).
			Set("parent_pid", model.Int(p.ParentPID)).
			Set("command_line", model.Str(p.CommandLine)).
			Set("class", model.Str(class)).
			Set("offset", model.Int64(p.Offset)))
		artifacts[i] = model.NewArtifact("process", p.Name, p.Offset).WithDetail(class)

		if p.ParentPID != 0 {
			if _, ok := children[p.ParentPID]; !ok {
				parents = append(parents, p.ParentPID)
			}
			children[p.ParentPID] = append(children[p.ParentPID], model.Int(p.PID))
		}
	}
	for _, ppid := range parents {
		tree.Set(strconv.Itoa(ppid), model.List(children[ppid]...))
	}

	var common []model.Value
	for _, e := range names.MostCommon(10) {
		common = append(common, model.Object(model.NewMap().
			Set("name", model.Str(e.Value)).
			Set("count", model.Int(e.Count))))
	}
	classBreakdown := model.NewMap()
	for _, e := range classes.MostCommon(0) {
		classBreakdown.Set(e.Value, model.Int(e.Count))
	}

	summary := model.NewMap().
		Set("os_type", model.Str(osType)).
		Set("total_processes", model.Int(len(r.found))).
		Set("unique_names", model.Int(names.Len())).
		Set("common_processes", model.List(common...)).
		Set("has_system_processes", model.Bool(hasSystem)).
		Set("classes", model.Object(classBreakdown)).
		Set("truncated", model.Bool(r.full()))

	data := model.NewMap().
		Set("processes", model.List(procs...)).
		Set("process_tree", model.Object(tree)).
		Set("summary", model.Object(summary)).
		Set("errors", model.List())
	return &plugin.Output{Data: model.Object(data), Artifacts: artifacts}
}

type processRecovery struct {
	acc    dump.Accessor
	limit  int
	prefix int64
	found  []ProcessCandidate
	index  map[string]int
}

func (r *processRecovery) full() bool { return len(r.found) >= r.limit }

// add records a name once; repeats only bump the hit count.
func (r *processRecovery) add(p ProcessCandidate) bool {
	if i, ok := r.index[p.Name]; ok {
		r.found[i].Hits++
		return false
	}
	if r.full() {
		return false
	}
	p.Hits = 1
	r.index[p.Name] = len(r.found)
	r.found = append(r.found, p)
	return true
}

// chunks walks the whole dump in overlapping 1MB chunks. Each match start
// belongs to exactly one chunk: the overlap tail is left to the next one.
func (r *processRecovery) chunks(ctx context.Context, fn func(offset int64, chunk []byte, owned int)) error {
	size := r.acc.Size()
	return forEachChunk(ctx, r.acc, size, procChunkSize, procOverlap, func(offset int64, chunk []byte) bool {
		owned := len(chunk)
		if offset+int64(len(chunk)) < size {
			owned -= procOverlap
		}
		fn(offset, chunk, owned)
		return !r.full()
	})
}

func (r *processRecovery) windows(ctx context.Context) error {
	err := r.chunks(ctx, func(offset int64, chunk []byte, owned int) {
		for i := 0; i < owned; {
			j := bytes.Index(chunk[i:], procPoolTag)
			if j < 0 || i+j >= owned {
				return
			}
			hit := offset + int64(i+j)
			if name, ok := r.poolTagName(hit); ok {
				r.add(ProcessCandidate{Name: name, Offset: hit})
			}
			i += j + 1
		}
	})
	if err != nil {
		return err
	}

	window := r.acc.Read(0, int(r.prefix))
	for _, loc := range exeTokenRe.FindAllSubmatchIndex(window, -1) {
		if r.full() {
			break
		}
		r.add(ProcessCandidate{Name: string(window[loc[2]:loc[3]]), Offset: int64(loc[2])})
	}
	return nil
}

// poolTagName reads the image name field relative to a pool tag hit.
func (r *processRecovery) poolTagName(hit int64) (string, bool) {
	window := r.acc.Read(hit-procWindowStart, procWindowSize)
	if len(window) < procNameOffset+procNameSize {
		return "", false
	}
	field := window[procNameOffset : procNameOffset+procNameSize]
	end := bytes.IndexByte(field, 0)
	if end <= 0 {
		return "", false
	}
	for _, b := range field[:end] {
		if !isPrintable(b) {
			return "", false
		}
	}
	return string(field[:end]), true
}

func (r *processRecovery) linux(ctx context.Context) error {
	err := r.chunks(ctx, func(offset int64, chunk []byte, owned int) {
		for _, loc := range commRe.FindAllIndex(chunk, -1) {
			if loc[0] >= owned || r.full() {
				return
			}
			name := string(chunk[loc[0] : loc[1]-1])
			if len(name) <= 2 || strings.HasPrefix(name, "/") || strings.Contains(name[max(0, len(name)-4):], ".") {
				continue
			}
			r.add(ProcessCandidate{Name: name, Offset: offset + int64(loc[0])})
		}
	})
	if err != nil {
		return err
	}

	window := r.acc.Read(0, int(r.prefix))
	for _, loc := range cmdlineRe.FindAllIndex(window, -1) {
		if r.full() {
			break
		}
		cmdline := string(window[loc[0] : loc[1]-1])
		fields := strings.Fields(cmdline)
		if len(fields) == 0 {
			continue
		}
		name := fields[0][strings.LastIndexByte(fields[0], '/')+1:]
		if name == "" {
			continue
		}
		r.add(ProcessCandidate{Name: name, CommandLine: cmdline, Offset: int64(loc[0])})
	}
	return nil
}

func (r *processRecovery) generic() {
	window := r.acc.Read(0, int(r.prefix))
	for _, re := range genericRes {
		for _, loc := range re.FindAllSubmatchIndex(window, -1) {
			if r.full() {
				return
			}
			name := string(window[loc[2]:loc[3]])
			if name != "" {
				r.add(ProcessCandidate{Name: name, Offset: int64(loc[2])})
			}
		}
	}
}
