package tool

import (
	"bufio"
	"bytes"
	"strings"

	"recon-orchestrator/internal/tier"
)

// Subfinder enumerates subdomains from passive sources. Output is one host
// per line.
type Subfinder struct{}

func (s *Subfinder) Descriptor() Descriptor {
	return Descriptor{
		Name:            "subfinder",
		TierRequirement: tier.PlanFree,
		Category:        "discovery",
		Kind:            KindProcess,
	}
}

func (s *Subfinder) Image() string {
	return "docker.io/projectdiscovery/subfinder:latest"
}

func (s *Subfinder) Command(target string) []string {
	return []string{"subfinder", "-d", target, "-silent"}
}

func (s *Subfinder) Parse(raw []byte) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		host := strings.TrimSpace(scanner.Text())
		if host == "" || strings.ContainsAny(host, " \t") {
			continue
		}
		items = append(items, Item{
			Type:   "subdomain",
			Value:  host,
			Detail: "discovered via passive sources",
		})
	}
	return items, scanner.Err()
}

func (s *Subfinder) Simulate(target string) []Item {
	prefixes := []string{"www", "api", "mail", "dev"}
	items := make([]Item, 0, len(prefixes))
	for _, p := range prefixes {
		items = append(items, Item{
			Type:   "subdomain",
			Value:  p + "." + target,
			Detail: "simulated discovery",
		})
	}
	return items
}
