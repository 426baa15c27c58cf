package tool

import (
	"bufio"
	"bytes"
	"strings"

	"recon-orchestrator/internal/tier"
)

// DNSX resolves DNS records. Output lines look like
// "host.example.com [A] [203.0.113.10]".
type DNSX struct{}

func (d *DNSX) Descriptor() Descriptor {
	return Descriptor{
		Name:            "dnsx",
		TierRequirement: tier.PlanFree,
		Category:        "discovery",
		Kind:            KindProcess,
	}
}

func (d *DNSX) Image() string {
	return "docker.io/projectdiscovery/dnsx:latest"
}

func (d *DNSX) Command(target string) []string {
	return []string{"dnsx", "-d", target, "-a", "-resp", "-silent"}
}

func (d *DNSX) Parse(raw []byte) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		host := fields[0]
		record := strings.Trim(fields[1], "[]")
		value := strings.Trim(fields[2], "[]")
		items = append(items, Item{
			Type:   "record",
			Value:  host,
			Detail: record + " " + value,
			Meta:   map[string]string{"record_type": record, "answer": value},
		})
	}
	return items, scanner.Err()
}

func (d *DNSX) Simulate(target string) []Item {
	return []Item{
		{
			Type:   "record",
			Value:  target,
			Detail: "A 203.0.113.10",
			Meta:   map[string]string{"record_type": "A", "answer": "203.0.113.10"},
		},
	}
}
