package listenkit

import (
	"errors"
	"fmt"
	"sort"
)

var errNilClient = errors.New("listenkit: client must not be nil")

// ConfigModule is a named unit of client configuration selected explicitly
// by the caller instead of being discovered. Modules typically register
// listeners or tune the container factory.
type ConfigModule interface {
	// Name identifies the module. Duplicate names are imported once.
	Name() string

	// Priority orders module application; lower runs first. Modules with
	// equal priority apply in declaration order.
	Priority() int

	// Apply performs the module's configuration against the client.
	Apply(c *Client) error
}

// NewConfigModule wraps a function as a ConfigModule.
func NewConfigModule(name string, priority int, apply func(c *Client) error) ConfigModule {
	return &funcModule{name: name, priority: priority, apply: apply}
}

type funcModule struct {
	name     string
	priority int
	apply    func(c *Client) error
}

func (m *funcModule) Name() string { return m.name }

func (m *funcModule) Priority() int { return m.priority }

func (m *funcModule) Apply(c *Client) error { return m.apply(c) }

// ImportConfig applies the selected configuration modules to the client.
// Modules apply in priority order, declaration order breaking ties; a module
// name seen before is skipped. The first failing module aborts the import
// with its name in the error.
func ImportConfig(c *Client, modules ...ConfigModule) error {
	if c == nil {
		return errNilClient
	}

	ordered := make([]ConfigModule, len(modules))
	copy(ordered, modules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	imported := make(map[string]bool, len(ordered))
	for _, module := range ordered {
		if imported[module.Name()] {
			continue
		}
		imported[module.Name()] = true

		if err := module.Apply(c); err != nil {
			return fmt.Errorf("config module %q failed: %w", module.Name(), err)
		}
	}
	return nil
}
