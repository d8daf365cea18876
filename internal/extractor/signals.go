package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/model"
)

var (
	ipv4Re    = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	emailRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	bitcoinRe = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)
	cardRe    = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phoneRe   = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	md5Re     = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)
	sha1Re    = regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`)
	sha256Re  = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)
)

// parseIPv4 validates a dotted quad octet by octet.
func parseIPv4(s string) ([4]int, bool) {
	var octets [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return octets, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return octets, false
		}
		octets[i] = n
	}
	return octets, true
}

// IP classes.
const (
	IPPrivateA  = "private_class_a"
	IPPrivateB  = "private_class_b"
	IPPrivateC  = "private_class_c"
	IPLoopback  = "loopback"
	IPMulticast = "multicast"
	IPPublic    = "public"
)

// ClassifyIP returns the class of a valid dotted quad. Classes are checked
// in a fixed order so every address gets exactly one.
func ClassifyIP(octets [4]int) string {
	switch a, b := octets[0], octets[1]; {
	case a == 10:
		return IPPrivateA
	case a == 172 && b >= 16 && b <= 31:
		return IPPrivateB
	case a == 192 && b == 168:
		return IPPrivateC
	case a == 127:
		return IPLoopback
	case a >= 224:
		return IPMulticast
	}
	return IPPublic
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return len(digits) > 0 && sum%10 == 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Signals collects shape matches independent of categorization.
type Signals struct {
	IPs         *collections.OrderedSet[string]
	Emails      *collections.OrderedSet[string]
	Bitcoin     *collections.OrderedSet[string]
	CreditCards *collections.OrderedSet[string]
	Phones      *collections.OrderedSet[string]
	MD5         *collections.OrderedSet[string]
	SHA1        *collections.OrderedSet[string]
	SHA256      *collections.OrderedSet[string]
}

// NewSignals creates empty buckets capped at limit each.
func NewSignals(limit int) *Signals {
	return &Signals{
		IPs:         collections.NewOrderedSet[string](limit),
		Emails:      collections.NewOrderedSet[string](limit),
		Bitcoin:     collections.NewOrderedSet[string](limit),
		CreditCards: collections.NewOrderedSet[string](limit),
		Phones:      collections.NewOrderedSet[string](limit),
		MD5:         collections.NewOrderedSet[string](limit),
		SHA1:        collections.NewOrderedSet[string](limit),
		SHA256:      collections.NewOrderedSet[string](limit),
	}
}

// Scan tests s against every signal.
func (sg *Signals) Scan(s string) {
	for _, m := range ipv4Re.FindAllString(s, -1) {
		if _, ok := parseIPv4(m); ok {
			sg.IPs.Add(m)
		}
	}
	addAll(sg.Emails, emailRe, s)
	addAll(sg.Bitcoin, bitcoinRe, s)
	for _, m := range cardRe.FindAllString(s, -1) {
		d := digitsOnly(m)
		if len(d) >= 13 && len(d) <= 19 && luhnValid(d) {
			sg.CreditCards.Add(strings.TrimSpace(m))
		}
	}
	addAll(sg.Phones, phoneRe, s)
	addAll(sg.MD5, md5Re, s)
	addAll(sg.SHA1, sha1Re, s)
	addAll(sg.SHA256, sha256Re, s)
}

func addAll(set *collections.OrderedSet[string], re *regexp.Regexp, s string) {
	for _, m := range re.FindAllString(s, -1) {
		set.Add(m)
	}
}

// Value renders the buckets.
func (sg *Signals) Value() model.Value {
	hashes := model.NewMap().
		Set("md5", model.Strings(sg.MD5.Items())).
		Set("sha1", model.Strings(sg.SHA1.Items())).
		Set("sha256", model.Strings(sg.SHA256.Items()))
	return model.Object(model.NewMap().
		Set("ip_addresses", model.Strings(sg.IPs.Items())).
		Set("email_addresses", model.Strings(sg.Emails.Items())).
		Set("bitcoin_addresses", model.Strings(sg.Bitcoin.Items())).
		Set("credit_cards", model.Strings(sg.CreditCards.Items())).
		Set("phone_numbers", model.Strings(sg.Phones.Items())).
		Set("hashes", model.Object(hashes)))
}
