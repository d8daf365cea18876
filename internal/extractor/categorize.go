package extractor

import (
	"math"
	"regexp"
	"unicode"

	"github.com/dump-sleuth/pkg/model"
)

// CategoryInteresting is the catch-all for uncategorized high-signal strings.
const CategoryInteresting = "interesting"

type category struct {
	name     string
	patterns []*regexp.Regexp
}

func ci(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// categories in evaluation order; the first match wins.
var categories = []category{
	{"urls", ci(
		`https?://[^\s<>"']+`,
		`ftp://[^\s<>"']+`,
		`[a-zA-Z0-9.-]+\.(com|net|org|io|gov|edu|mil|co\.[a-z]{2})`,
	)},
	{"file_paths", ci(
		`[A-Za-z]:\\[^<>:"|?*\n\r]+`,
		`\\\\[^\\]+\\[^<>:"|?*\n\r]+`,
		`/[a-zA-Z0-9/_.-]+\.[a-zA-Z0-9]+`,
		`%[A-Z]+%\\[^<>:"|?*\n\r]+`,
	)},
	{"registry_keys", ci(
		`HKEY_[A-Z_]+\\[^<>:"|?*\n\r]+`,
		`SOFTWARE\\[^<>:"|?*\n\r]+`,
		`SYSTEM\\[^<>:"|?*\n\r]+`,
	)},
	{"dll_names", ci(`\w+\.dll`, `\w+\.exe`, `\w+\.sys`, `\w+\.ocx`)},
	{"error_messages", ci(
		`.*error.*|.*failed.*|.*exception.*`,
		`.*access denied.*|.*permission.*`,
		`.*not found.*|.*missing.*|.*invalid.*`,
	)},
	{"processes", ci(
		`process|thread|handle|mutex`,
		`\b(pid|tid)\b|session`,
		`running|stopped|suspended`,
		`priority|affinity`,
		`\b(svchost|lsass|explorer|winlogon|csrss|smss|wininit|systemd|sshd|kthreadd|crond)\b`,
	)},
	{"security", ci(
		`crypto|encrypt|decrypt|\bhash|\b(sha(1|256|512)?|md5)\b`,
		`certificate|signature|verify|\bauth`,
		`security|protection|shield|guard`,
		`firewall|antivirus|defender`,
	)},
	{"system", ci(
		`windows|microsoft|\bnt\b|win32`,
		`version|\bbuild|architecture|\bx(64|86)\b`,
		`\bcpu\b|memory|service`,
		`driver|device|hardware`,
	)},
	{"commands", ci(
		`powershell.*|cmd.*|wmic.*`,
		`net\s+(use|user|share|view)`,
		`reg\s+(add|delete|query)`,
		`schtasks.*|at\s+\d+`,
	)},
	{"credentials", ci(
		`password[:\s=]+\S+`,
		`pwd[:\s=]+\S+`,
		`user(name)?[:\s=]+\S+`,
		`api[_-]?key[:\s=]+\S+`,
	)},
}

// CategoryNames lists every category in evaluation order, interesting last.
func CategoryNames() []string {
	out := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		out = append(out, c.name)
	}
	return append(out, CategoryInteresting)
}

// Categorizer assigns strings to the categories admitted by a context.
type Categorizer struct {
	order       []category
	interesting bool
}

// NewCategorizer applies the context's include and exclude filters.
func NewCategorizer(ec *model.ExtractionContext) *Categorizer {
	c := &Categorizer{interesting: ec.CategoryAllowed(CategoryInteresting)}
	for _, cat := range categories {
		if ec.CategoryAllowed(cat.name) {
			c.order = append(c.order, cat)
		}
	}
	return c
}

// Categorize returns the earliest category with a matching pattern. Strings
// no pattern claims fall into interesting when longer than ten characters
// with at least one letter.
func (c *Categorizer) Categorize(s string) (string, bool) {
	for _, cat := range c.order {
		for _, re := range cat.patterns {
			if re.MatchString(s) {
				return cat.name, true
			}
		}
	}
	if c.interesting && len(s) > 10 && hasLetter(s) {
		return CategoryInteresting, true
	}
	return "", false
}

var (
	base64Shape  = regexp.MustCompile(`^[A-Za-z0-9+/]{20,}={0,2}$`)
	hexShape     = regexp.MustCompile(`^[0-9A-Fa-f]{16,}$`)
	longAlnumRun = regexp.MustCompile(`[A-Za-z0-9]{32,}`)
)

// IsInteresting flags strings that look encoded, random or token-like. It is
// independent of categorization.
func IsInteresting(s string) bool {
	return ShannonEntropy(s) > 4.5 ||
		base64Shape.MatchString(s) ||
		hexShape.MatchString(s) ||
		longAlnumRun.MatchString(s)
}

// ShannonEntropy returns the entropy of s in bits per character.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
