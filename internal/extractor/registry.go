package extractor

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/model"
)

var (
	hiveKeyRe = regexp.MustCompile(`(?i)(HKEY_LOCAL_MACHINE|HKLM|HKEY_CURRENT_USER|HKCU|HKEY_CLASSES_ROOT|HKCR|HKEY_USERS|HKU|HKEY_CURRENT_CONFIG)\\[^<>:"|?*\n\r\x00]{1,255}`)

	runKeyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Software\\Microsoft\\Windows\\CurrentVersion\\Run\\[^\\\r\n\x00=]+`),
		regexp.MustCompile(`(?i)Software\\Microsoft\\Windows\\CurrentVersion\\RunOnce\\[^\\\r\n\x00=]+`),
		regexp.MustCompile(`(?i)Software\\Microsoft\\Windows\\CurrentVersion\\RunServices\\[^\\\r\n\x00=]+`),
		regexp.MustCompile(`(?i)Software\\Wow6432Node\\Microsoft\\Windows\\CurrentVersion\\Run\\[^\\\r\n\x00=]+`),
	}
	runValueRe = regexp.MustCompile(`^\s*=\s*([^\r\n\x00]+)`)

	serviceRe     = regexp.MustCompile(`(?i)SYSTEM\\CurrentControlSet\\Services\\([^\\\r\n\x00]+)`)
	associationRe = regexp.MustCompile(`(?i)\\\.([a-zA-Z0-9]+)\\Shell\\Open\\Command`)
	softwareRe    = regexp.MustCompile(`(?i)SOFTWARE\\(?:Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Uninstall\\([^\\\r\n\x00]+)`)
)

// Persistence types.
const (
	PersistStartup   = "startup"
	PersistService   = "service"
	PersistTask      = "scheduled_task"
	PersistExtension = "browser_extension"
	PersistDLL       = "dll_injection"
	PersistDebugger  = "debugger"
	PersistWinlogon  = "winlogon"
	PersistOther     = "other"
)

// persistenceLocations are the known autorun keys, as written in reports.
var persistenceLocations = []string{
	`CurrentVersion\Run`,
	`CurrentVersion\RunOnce`,
	`CurrentVersion\RunServices`,
	`CurrentVersion\Explorer\Shell Folders\Startup`,
	`CurrentControlSet\Services`,
	`SOFTWARE\Microsoft\Windows NT\CurrentVersion\Schedule\TaskCache`,
	`SOFTWARE\Google\Chrome\Extensions`,
	`SOFTWARE\Mozilla\Firefox\Extensions`,
	`SOFTWARE\Microsoft\Windows NT\CurrentVersion\Windows\AppInit_DLLs`,
	`SOFTWARE\Microsoft\Windows NT\CurrentVersion\Image File Execution Options`,
	`SOFTWARE\Microsoft\Windows NT\CurrentVersion\Winlogon`,
}

var persistenceRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(persistenceLocations))
	for i, loc := range persistenceLocations {
		out[i] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(loc))
	}
	return out
}()

var interpreterTokens = []string{
	"powershell", "cmd.exe", "wscript", "cscript",
	"regsvr32", "rundll32", "mshta", "bitsadmin",
}

const (
	registryKeyCap    = 200
	runKeyCap         = 100
	serviceCap        = 100
	associationCap    = 50
	softwareCap       = 100
	persistenceCap    = 50
	runValueLookahead = 500
	persistBefore     = 100
	persistAfter      = 200
)

// PersistenceType maps a location to its mechanism.
func PersistenceType(location string) string {
	switch {
	case strings.Contains(location, "Run"):
		return PersistStartup
	case strings.Contains(location, "Services"):
		return PersistService
	case strings.Contains(location, "Schedule"):
		return PersistTask
	case strings.Contains(location, "Extensions"):
		return PersistExtension
	case strings.Contains(location, "AppInit"):
		return PersistDLL
	case strings.Contains(location, "Image File Execution"):
		return PersistDebugger
	case strings.Contains(location, "Winlogon"):
		return PersistWinlogon
	}
	return PersistOther
}

// AssessRisk rates a persistence hit from its location and surrounding text.
func AssessRisk(location, context string) model.RiskLevel {
	lower := strings.ToLower(context)
	for _, tok := range interpreterTokens {
		if strings.Contains(lower, tok) {
			return model.RiskHigh
		}
	}
	switch {
	case strings.Contains(location, "AppInit"), strings.Contains(location, "Image File Execution"):
		return model.RiskHigh
	case strings.Contains(location, "Run"):
		return model.RiskMedium
	}
	return model.RiskLow
}

// RegistryModule extracts registry paths and autorun persistence hints.
type RegistryModule struct{ info }

// NewRegistryModule creates the registry module.
func NewRegistryModule() *RegistryModule {
	return &RegistryModule{info{name: NameRegistry, priority: 15}}
}

// Analyze implements plugin.Module.
func (m *RegistryModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	text, err := readText(ctx, acc, ec)
	if err != nil {
		return nil, err
	}

	r := &registryScan{text: text}
	r.keys()
	r.runKeys()
	r.services()
	r.associations()
	r.software()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.persistence()

	stats := model.NewMap().
		Set("total_keys", model.Int(len(r.keyList))).
		Set("run_entries", model.Int(len(r.runList))).
		Set("services", model.Int(len(r.serviceList))).
		Set("persistence_indicators", model.Int(len(r.persistList)))

	data := model.NewMap().
		Set("registry_keys", model.List(r.keyList...)).
		Set("run_keys", model.List(r.runList...)).
		Set("services", model.List(r.serviceList...)).
		Set("file_associations", model.List(r.assocList...)).
		Set("installed_software", model.List(r.softwareList...)).
		Set("persistence_mechanisms", model.List(r.persistList...)).
		Set("statistics", model.Object(stats))
	return &plugin.Output{Data: model.Object(data), Artifacts: r.artifacts}, nil
}

type registryScan struct {
	text string

	keyList      []model.Value
	runList      []model.Value
	serviceList  []model.Value
	assocList    []model.Value
	softwareList []model.Value
	persistList  []model.Value
	artifacts    []model.ArtifactRecord
}

func (r *registryScan) keys() {
	seen := collections.NewOrderedSet[string](registryKeyCap)
	for _, loc := range hiveKeyRe.FindAllStringSubmatchIndex(r.text, -1) {
		path := strings.TrimSpace(r.text[loc[0]:loc[1]])
		if !seen.Add(path) {
			if seen.Full() {
				return
			}
			continue
		}
		hive := r.text[loc[2]:loc[3]]
		r.keyList = append(r.keyList, model.Object(model.NewMap().
			Set("path", model.Str(path)).
			Set("hive", model.Str(hive)).
			Set("offset", model.Int(loc[0]))))
		r.artifacts = append(r.artifacts, model.NewArtifact("registry_key", path, int64(loc[0])).WithDetail(strings.ToUpper(hive)))
	}
}

func (r *registryScan) runKeys() {
	for _, re := range runKeyRes {
		for _, loc := range re.FindAllStringIndex(r.text, -1) {
			if len(r.runList) >= runKeyCap {
				return
			}
			entry := strings.TrimSpace(r.text[loc[0]:loc[1]])
			value := "Unknown"
			tail := r.text[loc[1]:max(loc[1], min(len(r.text), loc[0]+runValueLookahead))]
			if m := runValueRe.FindStringSubmatch(tail); m != nil {
				value = strings.TrimSpace(m[1])
			}
			r.runList = append(r.runList, model.Object(model.NewMap().
				Set("key", model.Str(entry)).
				Set("value", model.Str(value)).
				Set("type", model.Str(PersistStartup)).
				Set("offset", model.Int(loc[0]))))
			r.artifacts = append(r.artifacts, model.NewArtifact("run_key", entry, int64(loc[0])).WithDetail(value))
		}
	}
}

func (r *registryScan) services() {
	seen := collections.NewOrderedSet[string](serviceCap)
	for _, loc := range serviceRe.FindAllStringSubmatchIndex(r.text, -1) {
		name := strings.TrimSpace(r.text[loc[2]:loc[3]])
		if name == "" || !seen.Add(name) {
			if seen.Full() {
				return
			}
			continue
		}
		r.serviceList = append(r.serviceList, model.Object(model.NewMap().
			Set("name", model.Str(name)).
			Set("path", model.Str(strings.TrimSpace(r.text[loc[0]:loc[1]]))).
			Set("offset", model.Int(loc[0]))))
		r.artifacts = append(r.artifacts, model.NewArtifact("service", name, int64(loc[0])))
	}
}

func (r *registryScan) associations() {
	for _, loc := range associationRe.FindAllStringSubmatchIndex(r.text, associationCap) {
		r.assocList = append(r.assocList, model.Object(model.NewMap().
			Set("extension", model.Str("."+r.text[loc[2]:loc[3]])).
			Set("key", model.Str(r.text[loc[0]:loc[1]])).
			Set("offset", model.Int(loc[0]))))
	}
}

func (r *registryScan) software() {
	seen := collections.NewOrderedSet[string](softwareCap)
	for _, loc := range softwareRe.FindAllStringSubmatchIndex(r.text, -1) {
		name := strings.TrimSpace(r.text[loc[2]:loc[3]])
		if name == "" || !seen.Add(name) {
			if seen.Full() {
				return
			}
			continue
		}
		r.softwareList = append(r.softwareList, model.Object(model.NewMap().
			Set("name", model.Str(name)).
			Set("path", model.Str(strings.TrimSpace(r.text[loc[0]:loc[1]]))).
			Set("offset", model.Int(loc[0]))))
		r.artifacts = append(r.artifacts, model.NewArtifact("installed_software", name, int64(loc[0])))
	}
}

type persistenceHit struct {
	location string
	start    int
	end      int
}

// persistence reports one hit per offset. Overlapping locations such as
// Run and RunOnce keep the longest match.
func (r *registryScan) persistence() {
	byOffset := make(map[int]persistenceHit)
	for i, re := range persistenceRes {
		for _, loc := range re.FindAllStringIndex(r.text, -1) {
			prev, ok := byOffset[loc[0]]
			if ok && prev.end-prev.start >= loc[1]-loc[0] {
				continue
			}
			byOffset[loc[0]] = persistenceHit{location: persistenceLocations[i], start: loc[0], end: loc[1]}
		}
	}

	hits := make([]persistenceHit, 0, len(byOffset))
	for _, h := range byOffset {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	if len(hits) > persistenceCap {
		hits = hits[:persistenceCap]
	}

	for _, h := range hits {
		window := contextWindow(r.text, h.start, h.end, persistBefore, persistAfter)
		kind := PersistenceType(h.location)
		risk := AssessRisk(h.location, window)
		r.persistList = append(r.persistList, model.Object(model.NewMap().
			Set("type", model.Str(kind)).
			Set("location", model.Str(h.location)).
			Set("context", model.Str(window)).
			Set("offset", model.Int(h.start)).
			Set("risk_level", model.Str(string(risk)))))
		r.artifacts = append(r.artifacts, model.NewArtifact("persistence", h.location, int64(h.start)).
			WithDetail(kind).WithRisk(risk))
	}
}
