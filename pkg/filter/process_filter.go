// Package filter classifies process names recovered from dumps.
package filter

import (
	"strings"
	"sync"
)

// ProcessClass is the coarse role of a process name.
type ProcessClass int

const (
	// ClassUnknown is an empty or unclassifiable name.
	ClassUnknown ProcessClass = iota
	// ClassKernel is a kernel thread or the kernel image itself.
	ClassKernel
	// ClassSystem is a core OS process (session manager, init, logon).
	ClassSystem
	// ClassService is a well-known background service host.
	ClassService
	// ClassUser is anything else.
	ClassUser
)

// String returns the report name of the class.
func (c ProcessClass) String() string {
	switch c {
	case ClassKernel:
		return "kernel"
	case ClassSystem:
		return "system"
	case ClassService:
		return "service"
	case ClassUser:
		return "user"
	default:
		return "unknown"
	}
}

// ProcessFilter classifies names by exact match and prefix rules.
// It is safe for concurrent use.
type ProcessFilter struct {
	mu sync.RWMutex

	kernel         map[string]bool
	kernelPrefixes []string
	system         map[string]bool
	services       map[string]bool

	cache     map[string]ProcessClass
	cacheSize int
}

// NewProcessFilter creates a filter with the built-in Windows and Linux rules.
func NewProcessFilter() *ProcessFilter {
	f := &ProcessFilter{
		cache:     make(map[string]ProcessClass),
		cacheSize: 4096,
	}
	f.initDefaults()
	return f
}

func (f *ProcessFilter) initDefaults() {
	f.kernel = set("system", "ntoskrnl.exe", "registry", "memory compression", "kthreadd", "swapper", "idle")
	f.kernelPrefixes = []string{"kworker", "ksoftirqd", "migration/", "rcu_", "kswapd", "jbd2/", "irq/"}
	f.system = set(
		"smss.exe", "csrss.exe", "wininit.exe", "winlogon.exe", "lsass.exe", "services.exe", "lsaiso.exe",
		"init", "systemd", "systemd-journald", "systemd-udevd", "systemd-logind", "launchd",
	)
	f.services = set(
		"svchost.exe", "spoolsv.exe", "dllhost.exe", "taskhostw.exe", "searchindexer.exe", "wmiprvse.exe",
		"sshd", "crond", "cron", "rsyslogd", "dbus-daemon", "networkmanager", "containerd", "dockerd",
	)
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Classify returns the class of a process name. Matching ignores case.
func (f *ProcessFilter) Classify(name string) ProcessClass {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ClassUnknown
	}

	f.mu.RLock()
	if c, ok := f.cache[key]; ok {
		f.mu.RUnlock()
		return c
	}
	c := f.classifyUncached(key)
	f.mu.RUnlock()

	f.mu.Lock()
	if len(f.cache) < f.cacheSize {
		f.cache[key] = c
	}
	f.mu.Unlock()
	return c
}

// classifyUncached expects a lowered name and the read lock held.
func (f *ProcessFilter) classifyUncached(key string) ProcessClass {
	if f.kernel[key] {
		return ClassKernel
	}
	for _, p := range f.kernelPrefixes {
		if strings.HasPrefix(key, p) {
			return ClassKernel
		}
	}
	if f.system[key] {
		return ClassSystem
	}
	if f.services[key] {
		return ClassService
	}
	return ClassUser
}

// LooksSystem is the loose name test used for the has-system-process flag:
// the name mentions system, kernel or init.
func LooksSystem(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "system") ||
		strings.Contains(lower, "kernel") ||
		strings.Contains(lower, "init")
}

// AddService registers extra service names.
func (f *ProcessFilter) AddService(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.services[strings.ToLower(n)] = true
	}
	// classification may change
	f.cache = make(map[string]ProcessClass)
}
