package core

import (
	"fmt"
	"strings"
	"unicode"
)

// ModuleID identifies a module, namespaced by kind (e.g. "provider.gemini").
type ModuleID string

// Namespace returns the part before the first dot, or "" if there is none.
func (id ModuleID) Namespace() string {
	ns, _, ok := strings.Cut(string(id), ".")
	if !ok {
		return ""
	}
	return ns
}

// Name returns the part after the first dot, or the whole ID if there is none.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// Validate reports whether id has the form "namespace.name" with both
// parts present and no whitespace.
func (id ModuleID) Validate() error {
	if strings.ContainsFunc(string(id), unicode.IsSpace) {
		return fmt.Errorf("module ID %q must not contain whitespace", id)
	}
	if id.Namespace() == "" || id.Name() == "" {
		return fmt.Errorf("module ID %q must be namespace.name", id)
	}
	return nil
}

// ModuleInfo describes a registrable module.
type ModuleInfo struct {
	// ID is the unique, namespaced module identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the minimal interface every module implements. Optional
// capabilities (Configurable, Provisioner, ...) are discovered by type
// assertion at load time.
type Module interface {
	ModuleInfo() ModuleInfo
}
