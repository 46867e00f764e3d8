package service

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/sentinelops/netscout/internal/scanner"
)

// Subnet is one scannable network attached to this machine, scored by how
// likely it is to be the LAN the user wants to scan.
type Subnet struct {
	CIDR        string `json:"cidr"`
	Interface   string `json:"interface"`
	Score       int    `json:"score"`
	Recommended bool   `json:"recommended"`
}

// NetworkService discovers local subnets for the scan form.
type NetworkService interface {
	Subnets(ctx context.Context) ([]Subnet, error)
}

type networkService struct {
	runner scanner.CommandRunner
}

// NewNetworkService creates a network service over a command runner.
func NewNetworkService(runner scanner.CommandRunner) NetworkService {
	return &networkService{runner: runner}
}

const netCmdTimeout = 5 * time.Second

// Subnets lists local IPv4 networks, best candidates first. Loopback and
// networks smaller than /24 are excluded.
func (s *networkService) Subnets(ctx context.Context) ([]Subnet, error) {
	gateway := s.defaultGateway(ctx)

	subnets := s.fromInterfaces(ctx, gateway)
	if len(subnets) == 0 {
		subnets = s.fromHostname(ctx)
	}

	sort.SliceStable(subnets, func(i, j int) bool { return subnets[i].Score > subnets[j].Score })
	if len(subnets) > 0 {
		subnets[0].Recommended = true
	}
	return subnets, nil
}

// fromInterfaces parses "ip -o -4 addr show" output into scored subnets.
func (s *networkService) fromInterfaces(ctx context.Context, gateway netip.Addr) []Subnet {
	stdout, _, rc, err := s.runner.Run(ctx, []string{"ip", "-o", "-4", "addr", "show"}, netCmdTimeout)
	if err != nil || rc != 0 {
		return nil
	}

	var subnets []Subnet
	seen := make(map[string]bool)
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "inet" {
			continue
		}
		iface := fields[1]
		prefix, err := netip.ParsePrefix(fields[3])
		if err != nil || !prefix.Addr().Is4() {
			continue
		}
		if prefix.Addr().IsLoopback() || iface == "lo" {
			continue
		}
		// Anything smaller than a /24 is a point-to-point or container
		// network, not a LAN worth sweeping.
		if prefix.Bits() > 24 {
			continue
		}

		network := prefix.Masked()
		cidr := network.String()
		if seen[cidr] {
			continue
		}
		seen[cidr] = true

		subnets = append(subnets, Subnet{
			CIDR:      cidr,
			Interface: iface,
			Score:     scoreSubnet(network, iface, gateway),
		})
	}
	return subnets
}

// fromHostname falls back to the host's primary address as a /24.
func (s *networkService) fromHostname(ctx context.Context) []Subnet {
	stdout, _, rc, err := s.runner.Run(ctx, []string{"hostname", "-I"}, netCmdTimeout)
	if err != nil || rc != 0 {
		return nil
	}
	for _, token := range strings.Fields(stdout) {
		addr, err := netip.ParseAddr(token)
		if err != nil || !addr.Is4() || addr.IsLoopback() {
			continue
		}
		prefix, err := netip.ParsePrefix(fmt.Sprintf("%s/24", addr))
		if err != nil {
			continue
		}
		return []Subnet{{
			CIDR:      prefix.Masked().String(),
			Interface: "unknown",
			Score:     scoreSubnet(prefix.Masked(), "unknown", netip.Addr{}),
		}}
	}
	return nil
}

// defaultGateway parses "ip route show default" for the gateway address.
func (s *networkService) defaultGateway(ctx context.Context) netip.Addr {
	stdout, _, rc, err := s.runner.Run(ctx, []string{"ip", "route", "show", "default"}, netCmdTimeout)
	if err != nil || rc != 0 {
		return netip.Addr{}
	}
	fields := strings.Fields(stdout)
	for i, f := range fields {
		if f == "via" && i+1 < len(fields) {
			if addr, err := netip.ParseAddr(fields[i+1]); err == nil {
				return addr
			}
		}
	}
	return netip.Addr{}
}

var virtualIfacePrefixes = []string{"docker", "veth", "br-", "virbr", "vbox", "vmnet"}
var physicalIfacePrefixes = []string{"eth", "en", "wlan", "wl"}

// scoreSubnet ranks a subnet by how likely it is to be the primary LAN.
func scoreSubnet(network netip.Prefix, iface string, gateway netip.Addr) int {
	score := 0
	if network.Addr().IsPrivate() {
		score += 10
	}
	if gateway.IsValid() && network.Contains(gateway) {
		score += 20
	}
	for _, p := range virtualIfacePrefixes {
		if strings.HasPrefix(iface, p) {
			score -= 15
			return score
		}
	}
	for _, p := range physicalIfacePrefixes {
		if strings.HasPrefix(iface, p) {
			score += 5
			break
		}
	}
	return score
}

// Compile-time check to ensure networkService implements NetworkService.
var _ NetworkService = (*networkService)(nil)
