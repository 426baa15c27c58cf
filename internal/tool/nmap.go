package tool

import (
	"bufio"
	"bytes"
	"strings"

	"recon-orchestrator/internal/tier"
)

// Nmap scans for open ports. Parsing targets grepable output (-oG -), where
// each host line carries a Ports: field like "80/open/tcp//http///".
type Nmap struct{}

func (n *Nmap) Descriptor() Descriptor {
	return Descriptor{
		Name:            "nmap",
		TierRequirement: tier.PlanPaid,
		Category:        "scanning",
		Kind:            KindProcess,
	}
}

func (n *Nmap) Image() string {
	return "docker.io/instrumentisto/nmap:latest"
}

func (n *Nmap) Command(target string) []string {
	return []string{"nmap", "-Pn", "--top-ports", "100", "-oG", "-", target}
}

func (n *Nmap) Parse(raw []byte) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Host:") {
			continue
		}
		_, portsField, found := strings.Cut(line, "Ports:")
		if !found {
			continue
		}
		host := strings.Fields(strings.TrimPrefix(line, "Host:"))[0]
		for _, entry := range strings.Split(portsField, ",") {
			parts := strings.Split(strings.TrimSpace(entry), "/")
			if len(parts) < 5 || parts[1] != "open" {
				continue
			}
			items = append(items, Item{
				Type:   "port",
				Value:  host + ":" + parts[0],
				Detail: parts[4],
				Meta: map[string]string{
					"port":     parts[0],
					"protocol": parts[2],
					"service":  parts[4],
				},
			})
		}
	}
	return items, scanner.Err()
}

func (n *Nmap) Simulate(target string) []Item {
	return []Item{
		{
			Type:   "port",
			Value:  target + ":443",
			Detail: "https",
			Meta:   map[string]string{"port": "443", "protocol": "tcp", "service": "https"},
		},
		{
			Type:   "port",
			Value:  target + ":22",
			Detail: "ssh",
			Meta:   map[string]string{"port": "22", "protocol": "tcp", "service": "ssh"},
		},
	}
}
