package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/config"
)

// fakeRunner dispatches canned responses based on the argv contents and
// records every invocation.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(argv []string) (string, string, int, error)
}

func (f *fakeRunner) Run(_ context.Context, argv []string, _ time.Duration) (string, string, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()
	return f.respond(argv)
}

func (f *fakeRunner) RunEnv(ctx context.Context, argv, _ []string, timeout time.Duration) (string, string, int, error) {
	return f.Run(ctx, argv, timeout)
}

func (f *fakeRunner) callsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, argv := range f.calls {
		if hasArg(argv, substr) {
			n++
		}
	}
	return n
}

func hasArg(argv []string, s string) bool {
	for _, a := range argv {
		if a == s {
			return true
		}
	}
	return false
}

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		NmapPath:          "nmap",
		RustscanPath:      "rustscan",
		ArpScanPath:       "arp-scan",
		Interface:         "eth0",
		TimeoutPerHost:    120,
		RustscanBatchSize: 3000,
		ArpConcurrency:    50,
		PortConcurrency:   20,
		DeepConcurrency:   5,
	}
}

// progressRecorder collects every progress message the pipeline emits.
type progressRecorder struct {
	mu       sync.Mutex
	messages []string
	failOn   string
	failWith error
}

func (r *progressRecorder) hook(_ context.Context, message string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	if r.failOn != "" && strings.HasPrefix(message, r.failOn) {
		return r.failWith
	}
	return nil
}

func (r *progressRecorder) countPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (r *progressRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

const emptySweepXML = `<?xml version="1.0"?><nmaprun></nmaprun>`

func sweepXML(hosts ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><nmaprun>`)
	for _, h := range hosts {
		b.WriteString(h)
	}
	b.WriteString(`</nmaprun>`)
	return b.String()
}

func upHost(ip, mac, vendor string) string {
	var b strings.Builder
	b.WriteString(`<host><status state="up"/>`)
	fmt.Fprintf(&b, `<address addr="%s" addrtype="ipv4"/>`, ip)
	if mac != "" {
		fmt.Fprintf(&b, `<address addr="%s" addrtype="mac" vendor="%s"/>`, mac, vendor)
	}
	b.WriteString(`</host>`)
	return b.String()
}

const deepScanXML = `<?xml version="1.0"?>
<nmaprun>
  <host>
    <status state="up"/>
    <address addr="192.168.1.10" addrtype="ipv4"/>
    <hostnames><hostname name="printer.lan"/></hostnames>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh" product="OpenSSH" version="9.6"><cpe>cpe:/a:openbsd:openssh:9.6</cpe></service>
        <script id="ssh-hostkey" output="2048 aa:bb (RSA)"/>
      </port>
      <port protocol="tcp" portid="80">
        <state state="open"/>
        <service name="http" product="lighttpd"/>
      </port>
    </ports>
    <os>
      <osmatch name="Linux 5.x" accuracy="96">
        <osclass osfamily="Linux"><cpe>cpe:/o:linux:linux_kernel:5</cpe></osclass>
      </osmatch>
    </os>
  </host>
</nmaprun>`

func TestRunNoLiveHosts(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		return emptySweepXML, "", 0, nil
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())
	rec := &progressRecorder{}

	hosts, err := p.Run(context.Background(), "192.168.1.0/24", nil, rec.hook)
	require.NoError(t, err)
	assert.Empty(t, hosts)
	assert.Equal(t, "Pipeline complete: No live hosts found", rec.last())
}

func TestRunFullPipelineSingleHost(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		switch {
		case hasArg(argv, "-sn"):
			return sweepXML(upHost("192.168.1.10", "AA:BB:CC:DD:EE:01", "Acme")), "", 0, nil
		case strings.Contains(argv[1], "rustscan"):
			return "192.168.1.10 -> [22, 80]", "", 0, nil
		case hasArg(argv, "-sV"):
			return deepScanXML, "", 0, nil
		default:
			return "", "", 1, nil
		}
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())
	rec := &progressRecorder{}

	hosts, err := p.Run(context.Background(), "192.168.1.10", nil, rec.hook)
	require.NoError(t, err)
	require.Len(t, hosts, 1)

	h := hosts[0]
	assert.Equal(t, "192.168.1.10", h.IP)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", h.MAC)
	assert.Equal(t, "Acme", h.Vendor)
	assert.Equal(t, []int{22, 80}, h.OpenPorts)
	assert.Equal(t, "printer.lan", h.Hostname)
	assert.Equal(t, "Linux 5.x", h.OSName)
	assert.Equal(t, "Linux", h.OSFamily)
	assert.Equal(t, 96, h.OSAccuracy)
	assert.Equal(t, "cpe:/o:linux:linux_kernel:5", h.OSCPE)
	assert.NotEmpty(t, h.NmapXML)

	require.Contains(t, h.Services, 22)
	ssh := h.Services[22]
	assert.Equal(t, "ssh", ssh.Name)
	assert.Equal(t, "OpenSSH", ssh.Product)
	assert.Equal(t, "9.6", ssh.Version)
	assert.Equal(t, "cpe:/a:openbsd:openssh:9.6", ssh.CPE)
	assert.Equal(t, "ssh-hostkey: 2048 aa:bb (RSA)", ssh.Scripts)

	// MAC came from the sweep, so stage 2 runs no ARP tools.
	assert.Equal(t, 0, runner.callsMatching("-q"))
	assert.Contains(t, rec.last(), "Pipeline complete: 1 hosts, 2 open ports")
}

func TestRunSkipsDeepScanWhenPortCountUnchanged(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		switch {
		case hasArg(argv, "-sn"):
			return sweepXML(upHost("192.168.1.10", "AA:BB:CC:DD:EE:01", "Acme")), "", 0, nil
		case strings.Contains(argv[1], "rustscan"):
			return "192.168.1.10 -> [22, 80]", "", 0, nil
		default:
			return "", "", 1, nil
		}
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())
	rec := &progressRecorder{}

	prior := map[string]int{"AA:BB:CC:DD:EE:01": 2}
	hosts, err := p.Run(context.Background(), "192.168.1.10", prior, rec.hook)
	require.NoError(t, err)
	require.Len(t, hosts, 1)

	assert.Equal(t, []int{22, 80}, hosts[0].OpenPorts)
	assert.Empty(t, hosts[0].Services)
	assert.Equal(t, 0, runner.callsMatching("-sV"))
	assert.Equal(t, 1, rec.countPrefix("Stage 4: No hosts need deep scanning"))
}

func TestRunDeepScansWhenPortCountChanged(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		switch {
		case hasArg(argv, "-sn"):
			return sweepXML(upHost("192.168.1.10", "AA:BB:CC:DD:EE:01", "Acme")), "", 0, nil
		case strings.Contains(argv[1], "rustscan"):
			return "192.168.1.10 -> [22, 80]", "", 0, nil
		case hasArg(argv, "-sV"):
			return deepScanXML, "", 0, nil
		default:
			return "", "", 1, nil
		}
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())

	prior := map[string]int{"AA:BB:CC:DD:EE:01": 5}
	hosts, err := p.Run(context.Background(), "192.168.1.10", prior, nil)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "Linux 5.x", hosts[0].OSName)
	assert.Equal(t, 1, runner.callsMatching("-sV"))
}

func TestRunCancelledAtProgressCheckpoint(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		switch {
		case hasArg(argv, "-sn"):
			return sweepXML(upHost("192.168.1.10", "AA:BB:CC:DD:EE:01", "Acme")), "", 0, nil
		case strings.Contains(argv[1], "rustscan"):
			return "192.168.1.10 -> [22]", "", 0, nil
		default:
			return "", "", 1, nil
		}
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())
	rec := &progressRecorder{failOn: "Stage 3: Scanned", failWith: ErrCancelled}

	hosts, err := p.Run(context.Background(), "192.168.1.10", nil, rec.hook)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, hosts)
	// Stage 4 never starts once the hook reports cancellation.
	assert.Equal(t, 0, runner.callsMatching("-sV"))
}

func TestStage3ProgressEveryTenHosts(t *testing.T) {
	var hostEls []string
	for i := 1; i <= 25; i++ {
		hostEls = append(hostEls, upHost(fmt.Sprintf("10.0.0.%d", i), fmt.Sprintf("AA:BB:CC:DD:EE:%02X", i), "Acme"))
	}
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		switch {
		case hasArg(argv, "-sn"):
			return sweepXML(hostEls...), "", 0, nil
		default:
			// rustscan and the nmap fallback both find nothing.
			return "", "", 0, nil
		}
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())
	rec := &progressRecorder{}

	hosts, err := p.Run(context.Background(), "10.0.0.0/24", nil, rec.hook)
	require.NoError(t, err)
	assert.Len(t, hosts, 25)

	// Checkpoints fire at 10, 20, and 25 completions.
	assert.Equal(t, 3, rec.countPrefix("Stage 3: Scanned"))
	assert.Equal(t, 1, rec.countPrefix("Stage 3: 0 open ports across 0/25 hosts"))
}

func TestARPLookupResolvesMissingMAC(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		if strings.Contains(argv[1], "arp-scan") {
			return "192.168.1.20\tAA:BB:CC:DD:EE:02\tWidget Corp", "", 0, nil
		}
		return "", "", 1, nil
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())

	h, err := p.arpLookupOne(context.Background(), DiscoveredHost{IP: "192.168.1.20", IsUp: true})
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:02", h.MAC)
	assert.Equal(t, "Widget Corp", h.Vendor)
}

func TestARPLookupFallsBackToNmap(t *testing.T) {
	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		if strings.Contains(argv[1], "arp-scan") {
			return "", "interface error", 1, nil
		}
		if hasArg(argv, "-sn") {
			return sweepXML(upHost("192.168.1.20", "AA:BB:CC:DD:EE:03", "Gadget Inc")), "", 0, nil
		}
		return "", "", 1, nil
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())

	h, err := p.arpLookupOne(context.Background(), DiscoveredHost{IP: "192.168.1.20", IsUp: true})
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:03", h.MAC)
	assert.Equal(t, "Gadget Inc", h.Vendor)
}

func TestPortScanFallsBackToNmap(t *testing.T) {
	const fallbackXML = `<?xml version="1.0"?>
<nmaprun><host><status state="up"/><address addr="192.168.1.30" addrtype="ipv4"/>
<ports>
  <port protocol="tcp" portid="8080"><state state="open"/></port>
  <port protocol="tcp" portid="9090"><state state="closed"/></port>
</ports></host></nmaprun>`

	runner := &fakeRunner{respond: func(argv []string) (string, string, int, error) {
		if strings.Contains(argv[1], "rustscan") {
			return "", "Command timed out after 30s", -1, nil
		}
		if hasArg(argv, "--top-ports") {
			return fallbackXML, "", 0, nil
		}
		return "", "", 1, nil
	}}
	p := NewPipeline(testScannerConfig(), runner, slog.Default())

	h, err := p.portScanOne(context.Background(), DiscoveredHost{IP: "192.168.1.30", IsUp: true}, 60)
	require.NoError(t, err)
	assert.Equal(t, []int{8080}, h.OpenPorts)
}
