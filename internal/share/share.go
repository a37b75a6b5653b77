// Package share routes formatted speed text to a user-chosen target, the
// process-level stand-in for a platform share sheet.
package share

import (
	"context"
	"fmt"
	"sync"
)

// Target is one destination a reading can be shared to.
type Target interface {
	Name() string
	Share(ctx context.Context, text string) error
}

// Chooser presents the set of registered targets and routes a payload to one
// of them. The empty target name means the configured default.
type Chooser struct {
	mu         sync.Mutex
	defaultTgt string
	targets    map[string]Target
	order      []string
}

func NewChooser(defaultTarget string) *Chooser {
	return &Chooser{
		defaultTgt: defaultTarget,
		targets:    make(map[string]Target),
	}
}

func (c *Chooser) Register(t Target) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("share: target must have a name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.targets[t.Name()]; dup {
		return fmt.Errorf("share: duplicate target %q", t.Name())
	}
	c.targets[t.Name()] = t
	c.order = append(c.order, t.Name())
	return nil
}

// Targets lists registered target names in registration order.
func (c *Chooser) Targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Share hands text to the named target, or the default when name is empty.
func (c *Chooser) Share(ctx context.Context, name, text string) error {
	c.mu.Lock()
	if name == "" {
		name = c.defaultTgt
	}
	if name == "" && len(c.order) > 0 {
		name = c.order[0]
	}
	t, ok := c.targets[name]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("share: no such target %q", name)
	}
	if err := t.Share(ctx, text); err != nil {
		return fmt.Errorf("share: %s: %w", name, err)
	}
	return nil
}
