package extractor

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/model"
)

var (
	netURLRe    = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
	netDomainRe = regexp.MustCompile(`\b(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}\b`)
	netShareRe  = regexp.MustCompile(`\\\\[a-zA-Z0-9\-\.]+\\[a-zA-Z0-9\$\-_\.]+`)
	netPortRe   = regexp.MustCompile(`(?:port|Port|PORT)[:\s]*(\d{1,5})`)
)

// domains ending like binaries are file names, not hosts
var binaryExtensions = []string{".dll", ".exe", ".sys", ".dat"}

const (
	urlCap    = 100
	ipCap     = 100
	emailCap  = 50
	domainCap = 100
	shareCap  = 50
	urlAround = 50
)

// NetworkModule extracts URLs, addresses, domains, shares and ports.
type NetworkModule struct{ info }

// NewNetworkModule creates the network module.
func NewNetworkModule() *NetworkModule {
	return &NetworkModule{info{name: NameNetwork, priority: 10}}
}

// Analyze implements plugin.Module.
func (m *NetworkModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	text, err := readText(ctx, acc, ec)
	if err != nil {
		return nil, err
	}
	n := &networkScan{text: text}
	n.urls()
	n.ips()
	n.emails()
	n.domains()
	n.shares()
	n.ports()

	stats := model.NewMap().
		Set("total_urls", model.Int(len(n.urlList))).
		Set("total_ips", model.Int(len(n.ipList))).
		Set("total_emails", model.Int(n.emailSet.Len())).
		Set("total_domains", model.Int(len(n.domainList))).
		Set("unique_ports", model.Int(len(n.portList)))

	ports := make([]model.Value, len(n.portList))
	for i, p := range n.portList {
		ports[i] = model.Int(p)
	}

	data := model.NewMap().
		Set("urls", model.List(n.urlList...)).
		Set("ip_addresses", model.List(n.ipList...)).
		Set("email_addresses", model.Strings(n.emailSet.Items())).
		Set("domains", model.List(n.domainList...)).
		Set("network_shares", model.Strings(n.shareSet.Items())).
		Set("ports", model.List(ports...)).
		Set("statistics", model.Object(stats))
	return &plugin.Output{Data: model.Object(data), Artifacts: n.artifacts}, nil
}

type networkScan struct {
	text string

	urlList    []model.Value
	ipList     []model.Value
	emailSet   *collections.OrderedSet[string]
	domainList []model.Value
	shareSet   *collections.OrderedSet[string]
	portList   []int
	artifacts  []model.ArtifactRecord
}

func (n *networkScan) urls() {
	for _, loc := range netURLRe.FindAllStringIndex(n.text, urlCap) {
		url := n.text[loc[0]:loc[1]]
		n.urlList = append(n.urlList, model.Object(model.NewMap().
			Set("url", model.Str(url)).
			Set("context", model.Str(contextWindow(n.text, loc[0], loc[1], urlAround, urlAround))).
			Set("offset", model.Int(loc[0]))))
		n.artifacts = append(n.artifacts, model.NewArtifact("url", url, int64(loc[0])))
	}
}

func (n *networkScan) ips() {
	seen := collections.NewOrderedSet[string](ipCap)
	for _, loc := range ipv4Re.FindAllStringIndex(n.text, -1) {
		ip := n.text[loc[0]:loc[1]]
		octets, ok := parseIPv4(ip)
		if !ok || !seen.Add(ip) {
			if seen.Full() {
				return
			}
			continue
		}
		class := ClassifyIP(octets)
		n.ipList = append(n.ipList, model.Object(model.NewMap().
			Set("ip", model.Str(ip)).
			Set("type", model.Str(class)).
			Set("offset", model.Int(loc[0]))))
		n.artifacts = append(n.artifacts, model.NewArtifact("ip_address", ip, int64(loc[0])).WithDetail(class))
	}
}

func (n *networkScan) emails() {
	n.emailSet = collections.NewOrderedSet[string](emailCap)
	for _, loc := range emailRe.FindAllStringIndex(n.text, -1) {
		email := n.text[loc[0]:loc[1]]
		if n.emailSet.Add(email) {
			n.artifacts = append(n.artifacts, model.NewArtifact("email", email, int64(loc[0])))
		}
		if n.emailSet.Full() {
			return
		}
	}
}

func (n *networkScan) domains() {
	seen := collections.NewOrderedSet[string](domainCap)
	for _, loc := range netDomainRe.FindAllStringIndex(n.text, -1) {
		domain := strings.ToLower(n.text[loc[0]:loc[1]])
		if hasAnySuffix(domain, binaryExtensions) || !seen.Add(domain) {
			if seen.Full() {
				return
			}
			continue
		}
		tld := domain[strings.LastIndexByte(domain, '.')+1:]
		n.domainList = append(n.domainList, model.Object(model.NewMap().
			Set("domain", model.Str(domain)).
			Set("tld", model.Str(tld)).
			Set("offset", model.Int(loc[0]))))
		n.artifacts = append(n.artifacts, model.NewArtifact("domain", domain, int64(loc[0])))
	}
}

func (n *networkScan) shares() {
	n.shareSet = collections.NewOrderedSet[string](shareCap)
	for _, loc := range netShareRe.FindAllStringIndex(n.text, -1) {
		share := n.text[loc[0]:loc[1]]
		if n.shareSet.Add(share) {
			n.artifacts = append(n.artifacts, model.NewArtifact("network_share", share, int64(loc[0])))
		}
		if n.shareSet.Full() {
			return
		}
	}
}

func (n *networkScan) ports() {
	seen := make(map[int]bool)
	for _, m := range netPortRe.FindAllStringSubmatch(n.text, -1) {
		port, err := strconv.Atoi(m[1])
		if err != nil || port < 1 || port > 65535 || seen[port] {
			continue
		}
		seen[port] = true
		n.portList = append(n.portList, port)
	}
	sort.Ints(n.portList)
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
