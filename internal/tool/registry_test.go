package tool

import (
	"reflect"
	"testing"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"subfinder", "httpx", "dnsx", "whois", "nmap", "nuclei", "gitleaks", "shodan"} {
		tl, err := r.Get(name)
		if err != nil {
			t.Errorf("Get(%q) error = %v", name, err)
			continue
		}
		if tl.Descriptor().Name != name {
			t.Errorf("Get(%q).Descriptor().Name = %q", name, tl.Descriptor().Name)
		}
	}

	if _, err := r.Get("masscan"); err == nil {
		t.Error("Get(masscan) error = nil, want unknown tool error")
	}
}

func TestRegistryImages(t *testing.T) {
	r := NewRegistry()
	images := r.Images()

	// API tools contribute no image.
	if len(images) != 7 {
		t.Errorf("Images() returned %d images, want 7", len(images))
	}
	for _, img := range images {
		if img == "" {
			t.Error("Images() contains empty ref")
		}
	}
}

func TestSimulateIsDeterministic(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			tl, err := r.Get(name)
			if err != nil {
				t.Fatal(err)
			}
			first := tl.Simulate("example.com")
			second := tl.Simulate("example.com")
			if len(first) == 0 {
				t.Fatal("Simulate() returned no items")
			}
			if !reflect.DeepEqual(first, second) {
				t.Error("Simulate() not deterministic across calls")
			}
		})
	}
}

func TestSubfinderParse(t *testing.T) {
	raw := []byte("www.example.com\napi.example.com\n\nnoise line with spaces\n")
	items, err := (&Subfinder{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Parse() returned %d items, want 2", len(items))
	}
	if items[0].Value != "www.example.com" || items[0].Type != "subdomain" {
		t.Errorf("items[0] = %+v", items[0])
	}
}

func TestHTTPXParse(t *testing.T) {
	raw := []byte(`{"url":"https://example.com","status_code":200,"title":"Home","webserver":"nginx"}
not json
{"url":"https://example.com/admin","status_code":403,"title":"Forbidden","webserver":"nginx"}`)
	items, err := (&HTTPX{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Parse() returned %d items, want 2", len(items))
	}
	if items[1].Meta["status_code"] != "403" {
		t.Errorf("items[1] status_code = %q, want 403", items[1].Meta["status_code"])
	}
}

func TestNmapParse(t *testing.T) {
	raw := []byte(`# Nmap done at ...
Host: 203.0.113.10 ()	Ports: 22/open/tcp//ssh///, 80/open/tcp//http///, 443/closed/tcp//https///
`)
	items, err := (&Nmap{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Parse() returned %d items, want 2 (closed ports skipped)", len(items))
	}
	if items[0].Value != "203.0.113.10:22" {
		t.Errorf("items[0].Value = %q", items[0].Value)
	}
	if items[1].Meta["service"] != "http" {
		t.Errorf("items[1] service = %q, want http", items[1].Meta["service"])
	}
}

func TestNucleiParse(t *testing.T) {
	raw := []byte(`{"template-id":"exposed-panel","info":{"name":"Exposed Admin Panel","severity":"high"},"matched-at":"https://example.com/admin"}`)
	items, err := (&Nuclei{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("Parse() returned %d items, want 1", len(items))
	}
	if items[0].Severity != "high" || items[0].Type != "vulnerability" {
		t.Errorf("items[0] = %+v", items[0])
	}
}

func TestGitleaksParse(t *testing.T) {
	raw := []byte(`[{"RuleID":"aws-access-key","Description":"AWS Access Key","File":"main.tf","StartLine":7,"Commit":"abc123"}]`)
	items, err := (&Gitleaks{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("Parse() returned %d items, want 1", len(items))
	}
	if items[0].Value != "main.tf:7" || items[0].Type != "secret" {
		t.Errorf("items[0] = %+v", items[0])
	}

	if _, err := (&Gitleaks{}).Parse([]byte("garbage")); err == nil {
		t.Error("Parse(garbage) error = nil, want parse error")
	}
}

func TestShodanParse(t *testing.T) {
	raw := []byte(`{"ports":[22,443],"vulns":["CVE-2024-1234"],"org":"Example Hosting"}`)
	items, err := (&Shodan{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("Parse() returned %d items, want 3", len(items))
	}
	last := items[2]
	if last.Type != "vulnerability" || last.Meta["cve"] != "CVE-2024-1234" {
		t.Errorf("items[2] = %+v", last)
	}
}

func TestWhoisParse(t *testing.T) {
	raw := []byte(`Domain Name: EXAMPLE.COM
Registrar: Example Registrar, Inc.
Creation Date: 1995-08-14T04:00:00Z
Registry Expiry Date: 2026-08-13T04:00:00Z
`)
	items, err := (&Whois{}).Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("Parse() returned %d items, want 1", len(items))
	}
	if items[0].Meta["registrar"] != "Example Registrar, Inc." {
		t.Errorf("registrar = %q", items[0].Meta["registrar"])
	}
}
