package tool

import "fmt"

// Registry maps tool names to their implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry with all supported tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(&Subfinder{})
	r.Register(&HTTPX{})
	r.Register(&DNSX{})
	r.Register(&Whois{})
	r.Register(&Nmap{})
	r.Register(&Nuclei{})
	r.Register(&Gitleaks{})
	r.Register(&Shodan{})
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Descriptor().Name] = t
}

// Get returns the tool for the given name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
	return t, nil
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Images returns the container images needed by process tools.
func (r *Registry) Images() []string {
	images := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		if img := t.Image(); img != "" {
			images = append(images, img)
		}
	}
	return images
}
