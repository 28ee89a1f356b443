// Package config loads and validates the architecture.yaml topology file
// (§6). Loading and validation here mirror original_source's
// ConfigManager.load_config / _find_self_node / validate_config — the
// same checks, the same error cases, expressed as idiomatic Go.
package config

import (
	"fmt"
	"os"
	"sync"

	"go.yaml.in/yaml/v2"

	"github.com/edgefaas/scheduler/internal/domain"
	"github.com/edgefaas/scheduler/internal/obs"
)

// File is the on-disk shape of architecture.yaml (§6).
type File struct {
	Architecture string      `yaml:"architecture"`
	Node         nodeRef     `yaml:"node"`
	Topology     []yamlNode  `yaml:"topology"`
}

type nodeRef struct {
	ID string `yaml:"id"`
}

type yamlNode struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Role    string `yaml:"role"`
	Zone    string `yaml:"zone"`
}

// Config is the parsed, validated result of loading architecture.yaml:
// the topology and the current architecture (mutable via POST /reload).
// The tail-ratio thresholds are not held here; they live in the
// scheduler.
type Config struct {
	mu       sync.RWMutex
	path     string
	arch     domain.Arch
	topology domain.Topology
}

// Load reads and validates path, returning a ready-to-use Config.
// Every failure here is a fatal configuration error (§7): missing file,
// malformed YAML, a field missing, or a node.id absent from topology.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfigMalformed, path, err)
	}

	if err := validate(f); err != nil {
		return nil, err
	}

	topo := toTopology(f)
	arch := domain.Arch(f.Architecture)
	if !arch.Valid() {
		return nil, fmt.Errorf("%w: architecture %q", domain.ErrUnknownArch, f.Architecture)
	}

	return &Config{path: path, arch: arch, topology: topo}, nil
}

// validate mirrors ConfigManager.validate_config plus _find_self_node's
// node-id lookup: every required field must be present, and node.id must
// name an entry in topology.
func validate(f File) error {
	if f.Architecture == "" {
		return fmt.Errorf("%w: architecture", domain.ErrMissingField)
	}
	if f.Node.ID == "" {
		return fmt.Errorf("%w: node.id", domain.ErrMissingField)
	}
	if len(f.Topology) == 0 {
		return fmt.Errorf("%w: topology", domain.ErrMissingField)
	}

	found := false
	for _, n := range f.Topology {
		if n.ID == "" || n.Address == "" || n.Role == "" || n.Zone == "" {
			return fmt.Errorf("%w: topology entry missing id/address/role/zone", domain.ErrMissingField)
		}
		if n.ID == f.Node.ID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrSelfNotInTopology, f.Node.ID)
	}
	return nil
}

func toTopology(f File) domain.Topology {
	nodes := make(map[string]domain.Node, len(f.Topology))
	for _, n := range f.Topology {
		nodes[n.ID] = domain.Node{
			ID:      n.ID,
			Address: n.Address,
			Role:    domain.Role(n.Role),
			Zone:    n.Zone,
		}
	}
	return domain.Topology{SelfID: f.Node.ID, Nodes: nodes}
}

// Architecture returns the current architecture setting.
func (c *Config) Architecture() domain.Arch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.arch
}

// SetArchitecture validates and swaps the current architecture (POST /reload, §7).
func (c *Config) SetArchitecture(arch domain.Arch) error {
	if !arch.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownArch, arch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arch = arch
	return nil
}

// Topology returns the current topology snapshot.
func (c *Config) Topology() domain.Topology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topology
}

// Reload re-reads and re-validates the config file from disk (§10.3,
// triggered by SIGHUP), replacing both architecture and topology
// atomically. The previous Config is left intact if reload fails.
func (c *Config) Reload() error {
	next, err := Load(c.path)
	if err != nil {
		obs.ConfigReloadsTotal.WithLabelValues("error").Inc()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arch = next.arch
	c.topology = next.topology
	obs.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	return nil
}
