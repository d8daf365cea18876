package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/pkg/model"
)

func objects(t *testing.T, v model.Value, key string) []model.Value {
	t.Helper()
	got, ok := v.Get(key)
	require.True(t, ok, "missing %s", key)
	items, ok := got.AsList()
	require.True(t, ok)
	return items
}

func field(v model.Value, key string) string {
	got, _ := v.Get(key)
	s, _ := got.AsString()
	return s
}

func TestNetworkModule(t *testing.T) {
	data := []byte("\x00connect 192.168.1.5 then 8.8.8.8 via http://c2.example.net/beacon port: 4444\x00" +
		`\\fileserver\share$` + "\x00mail ops@corp.example.com loader.dll 300.1.1.1\x00")
	out := analyze(t, NewNetworkModule(), data, model.FormatUnknown, model.ExtractionOptions{})

	ips := objects(t, out.Data, "ip_addresses")
	require.Len(t, ips, 2)
	assert.Equal(t, "192.168.1.5", field(ips[0], "ip"))
	assert.Equal(t, IPPrivateC, field(ips[0], "type"))
	assert.Equal(t, "8.8.8.8", field(ips[1], "ip"))
	assert.Equal(t, IPPublic, field(ips[1], "type"))

	urls := objects(t, out.Data, "urls")
	require.Len(t, urls, 1)
	assert.Equal(t, "http://c2.example.net/beacon", field(urls[0], "url"))
	assert.Contains(t, field(urls[0], "context"), "8.8.8.8")

	var domains []string
	for _, d := range objects(t, out.Data, "domains") {
		domains = append(domains, field(d, "domain"))
	}
	assert.Contains(t, domains, "c2.example.net")
	assert.Contains(t, domains, "corp.example.com")
	assert.NotContains(t, domains, "loader.dll")

	assert.Equal(t, []string{"ops@corp.example.com"}, strList(t, out.Data, "email_addresses"))
	assert.Equal(t, []string{`\\fileserver\share$`}, strList(t, out.Data, "network_shares"))

	ports := objects(t, out.Data, "ports")
	require.Len(t, ports, 1)
	p, _ := ports[0].AsInt()
	assert.EqualValues(t, 4444, p)

	assert.EqualValues(t, 2, intAt(t, out.Data, "statistics", "total_ips"))
	assert.EqualValues(t, 1, intAt(t, out.Data, "statistics", "unique_ports"))

	ipArtifacts := artifactsOf(out, "ip_address")
	require.Len(t, ipArtifacts, 2)
	assert.Equal(t, IPPrivateC, ipArtifacts[0].Detail)
	assert.Len(t, artifactsOf(out, "network_share"), 1)
}

func TestNetworkModule_PortsSortedAndValidated(t *testing.T) {
	data := []byte("Port: 8080 port 22 PORT:99999 port:0 port 22")
	out := analyze(t, NewNetworkModule(), data, model.FormatUnknown, model.ExtractionOptions{})

	var got []int64
	for _, p := range objects(t, out.Data, "ports") {
		n, _ := p.AsInt()
		got = append(got, n)
	}
	assert.Equal(t, []int64{22, 8080}, got)
}

func TestNetworkModule_Empty(t *testing.T) {
	out := analyze(t, NewNetworkModule(), nil, model.FormatUnknown, model.ExtractionOptions{})
	assert.Empty(t, out.Artifacts)
	assert.Empty(t, objects(t, out.Data, "urls"))
	assert.EqualValues(t, 0, intAt(t, out.Data, "statistics", "total_domains"))
}
