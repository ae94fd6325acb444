package registry

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Registry is the ordered list of computation agents known to a deployment.
// The position of an agent in the list is its party index: every encryption
// agent must load the same registry for a given circuit, otherwise the
// shares it sends end up at the wrong parties.
type Registry struct {
	addrs []string
	index map[string]int
}

// New creates a registry from an ordered list of agent addresses
func New(addrs []string) (*Registry, error) {
	if len(addrs) == 0 {
		return nil, xerrors.Errorf("registry must contain at least one agent")
	}

	index := make(map[string]int, len(addrs))
	for i, addr := range addrs {
		if addr == "" {
			return nil, xerrors.Errorf("registry entry %d is empty", i)
		}
		if _, ok := index[addr]; ok {
			return nil, xerrors.Errorf("duplicated agent address: %s", addr)
		}
		index[addr] = i
	}

	return &Registry{addrs: addrs, index: index}, nil
}

// registryFile mirrors the on-disk format
type registryFile struct {
	Agents []string `yaml:"agents"`
}

// FromYAML creates a registry based on a yaml file
func FromYAML(path string) (*Registry, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rf := registryFile{}
	err = yaml.Unmarshal(yamlFile, &rf)
	if err != nil {
		return nil, err
	}

	return New(rf.Agents)
}

// Len returns the number of registered agents, i.e. the number of parties
func (r *Registry) Len() int {
	return len(r.addrs)
}

// Addresses returns a copy of the ordered agent addresses
func (r *Registry) Addresses() []string {
	addrs := make([]string, len(r.addrs))
	copy(addrs, r.addrs)
	return addrs
}

// Address returns the address of the agent at the given party index
func (r *Registry) Address(i int) (string, error) {
	if i < 0 || i >= len(r.addrs) {
		return "", xerrors.Errorf("party index %d out of range", i)
	}
	return r.addrs[i], nil
}

// Index returns the party index of the given agent address
func (r *Registry) Index(addr string) (int, bool) {
	i, ok := r.index[addr]
	return i, ok
}
