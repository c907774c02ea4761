package enrichmentmodule

import (
	"sort"
	"sync"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Registry holds the registered metadata agents. First registration of a
// name wins; later duplicates are logged and ignored.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds an agent. A duplicate name keeps the existing agent and
// is not an error; a declared capability without an implementation is.
func (r *Registry) Register(agent *Agent) error {
	if err := agent.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.Name]; exists {
		logger.Warn("Metadata agent %s is already registered, keeping the existing one", agent.Name)
		return nil
	}
	r.agents[agent.Name] = agent
	logger.Info("Registered metadata agent: %s (priority=%d, capabilities=%s)", agent.Name, agent.Priority, agent.Capabilities)
	return nil
}

// Agent returns the agent with the given name, or nil.
func (r *Registry) Agent(name string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name]
}

// IsEnabled reports whether a named agent exists and is enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return ok && a.Enabled
}

// AgentsWithCapability returns the enabled agents declaring the
// capability, ordered by ascending priority. Ties break on name so the
// order is deterministic.
func (r *Registry) AgentsWithCapability(c Capability) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Agent
	for _, a := range r.agents {
		if a.Enabled && a.Has(c) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].Name < matched[j].Name
	})
	return matched
}

// TagSource returns the enabled agent with the given name when it
// implements tag lookups.
func (r *Registry) TagSource(name string) TagProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok || !a.Enabled || a.Tags == nil {
		return nil
	}
	return a.Tags
}

// Names returns all registered agent names for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
