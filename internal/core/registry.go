package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Module namespaces compiled into codeproxy.
const (
	NamespaceProvider = "provider"
	NamespaceGateway  = "gateway"
)

var (
	registry   = make(map[ModuleID]ModuleInfo)
	registryMu sync.RWMutex
)

// RegisterModule records a module's info under its ID. It panics on a
// malformed or duplicate ID, or a nil constructor, so a bad module fails
// at program start. Call it from init.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := info.ID.Validate(); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[info.ID]; exists {
		panic(fmt.Sprintf("module already registered: %s", info.ID))
	}
	registry[info.ID] = info
}

// GetModule looks up a registered module by its configuration key.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules of one kind, e.g.
// NamespaceProvider yields provider.gemini and provider.openai_compatible.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return collect(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func collect(keep func(ModuleID) bool) []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []ModuleInfo
	for id, info := range registry {
		if keep(id) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetRegistry clears the registry between tests.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ModuleID]ModuleInfo)
}
