// Package registry holds the static table of managed services and the
// orderings derived from it.
package registry

import (
	"sort"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleStatefulStore   Role = "stateful-store"
	RoleStatelessWorker Role = "stateless-worker"
	RoleGateway         Role = "gateway"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStatefulStore, RoleStatelessWorker, RoleGateway:
		return true
	}
	return false
}

type StoreKind string

const (
	StoreGraph      StoreKind = "graph"
	StoreRelational StoreKind = "relational"
	StoreCache      StoreKind = "cache"
)

// restoreOrder is the order stores are loaded during a restore. It is not
// derived from StartOrder.
var restoreOrder = []StoreKind{StoreGraph, StoreRelational, StoreCache}

// Capability kinds understood by the capability dispatcher.
const (
	KindTCP        = "tcp"
	KindHTTP       = "http"
	KindExec       = "exec"
	KindRunning    = "running"
	KindExecStdout = "exec-stdout"
	KindExecStdin  = "exec-stdin"
	KindCopy       = "copy"
)

// Offline kinds stop the service and run the command in a one-off container
// sharing its volumes, then start the service again.
const (
	KindOfflineStdout = "offline-stdout"
	KindOfflineStdin  = "offline-stdin"
)

// CapabilityRef names how a capability is carried out against the substrate.
// Command arguments may reference ${VAR} placeholders from the resolved env.
type CapabilityRef struct {
	Kind    string   `yaml:"kind" json:"kind"`
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`
	URL     string   `yaml:"url,omitempty" json:"url,omitempty"`
	Address string   `yaml:"address,omitempty" json:"address,omitempty"`
	Path    string   `yaml:"path,omitempty" json:"path,omitempty"` // container path for copy
	Pre     []string `yaml:"pre,omitempty" json:"pre,omitempty"`   // run in the service before a copy
}

type ServiceDescriptor struct {
	Name             string         `yaml:"name" json:"name"`
	Role             Role           `yaml:"role" json:"role"`
	StartOrder       int            `yaml:"start_order" json:"start_order"`
	Store            StoreKind      `yaml:"store,omitempty" json:"store,omitempty"`
	Optional         bool           `yaml:"optional,omitempty" json:"optional,omitempty"`
	Address          string         `yaml:"address,omitempty" json:"address,omitempty"`
	HealthCheck      CapabilityRef  `yaml:"health" json:"health"`
	Dump             *CapabilityRef `yaml:"dump,omitempty" json:"dump,omitempty"`
	Load             *CapabilityRef `yaml:"load,omitempty" json:"load,omitempty"`
	DumpFile         string         `yaml:"dump_file,omitempty" json:"dump_file,omitempty"`
	RestartAfterLoad bool           `yaml:"restart_after_load,omitempty" json:"restart_after_load,omitempty"`
}

func (d ServiceDescriptor) Stateful() bool { return d.Role == RoleStatefulStore }

// NeedsRestartAfterLoad reports whether the service must be restarted after
// its data file was replaced. Cache engines only pick up a new file on boot.
func (d ServiceDescriptor) NeedsRestartAfterLoad() bool {
	return d.Store == StoreCache || d.RestartAfterLoad
}

// Fleet is the ordered, immutable set of managed services.
type Fleet struct {
	services []ServiceDescriptor
}

func New(services []ServiceDescriptor) (Fleet, error) {
	seen := map[string]struct{}{}
	out := make([]ServiceDescriptor, 0, len(services))
	for _, s := range services {
		if err := validate(s); err != nil {
			return Fleet{}, err
		}
		if _, ok := seen[s.Name]; ok {
			return Fleet{}, errors.Errorf("duplicate service %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartOrder != out[j].StartOrder {
			return out[i].StartOrder < out[j].StartOrder
		}
		return out[i].Name < out[j].Name
	})
	return Fleet{services: out}, nil
}

// MustNew is New for static tables known to be valid.
func MustNew(services []ServiceDescriptor) Fleet {
	f, err := New(services)
	if err != nil {
		panic(err)
	}
	return f
}

func validate(s ServiceDescriptor) error {
	if s.Name == "" {
		return errors.New("service missing name")
	}
	if !s.Role.Valid() {
		return errors.Errorf("service %q has invalid role %q", s.Name, s.Role)
	}
	if s.HealthCheck.Kind == "" {
		return errors.Errorf("service %q missing health check", s.Name)
	}
	if s.Stateful() {
		if s.Dump == nil || s.Load == nil {
			return errors.Errorf("stateful service %q needs dump and load capabilities", s.Name)
		}
		if s.DumpFile == "" {
			return errors.Errorf("stateful service %q missing dump_file", s.Name)
		}
		return nil
	}
	if s.Dump != nil || s.Load != nil {
		return errors.Errorf("service %q is %s and cannot carry dump/load capabilities", s.Name, s.Role)
	}
	return nil
}

func (f Fleet) Len() int { return len(f.services) }

// All returns the services in ascending start order.
func (f Fleet) All() []ServiceDescriptor {
	return append([]ServiceDescriptor{}, f.services...)
}

// StopOrder returns the services in descending start order.
func (f Fleet) StopOrder() []ServiceDescriptor {
	out := make([]ServiceDescriptor, 0, len(f.services))
	for i := len(f.services) - 1; i >= 0; i-- {
		out = append(out, f.services[i])
	}
	return out
}

func (f Fleet) ByRole(role Role) []ServiceDescriptor {
	var out []ServiceDescriptor
	for _, s := range f.services {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

func (f Fleet) Stateful() []ServiceDescriptor { return f.ByRole(RoleStatefulStore) }

// RestoreOrder returns the stateful stores in the fixed restore order:
// graph, relational, cache, then any other store in start order.
func (f Fleet) RestoreOrder() []ServiceDescriptor {
	stores := f.Stateful()
	rank := func(k StoreKind) int {
		for i, o := range restoreOrder {
			if o == k {
				return i
			}
		}
		return len(restoreOrder)
	}
	sort.SliceStable(stores, func(i, j int) bool {
		return rank(stores[i].Store) < rank(stores[j].Store)
	})
	return stores
}

func (f Fleet) Lookup(name string) (ServiceDescriptor, bool) {
	for _, s := range f.services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceDescriptor{}, false
}

func (f Fleet) Names() []string {
	out := make([]string, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s.Name)
	}
	return out
}
