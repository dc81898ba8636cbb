package engine

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]FlowDefinition)
	registryMu sync.RWMutex
)

// Register adds a flow definition to the registry.
// Panics if a flow with the same key is already registered or the
// definition is incoherent; both are programming errors caught at init.
func Register(def FlowDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("flow already registered: %s", def.Info.Key))
	}
	if def.Ledger() {
		if _, ok := def.Field(def.PeriodField); !ok {
			panic(fmt.Sprintf("flow %s: period field %q not in schema", def.Info.Key, def.PeriodField))
		}
		if def.ResetOwner == nil {
			panic(fmt.Sprintf("flow %s: ledger flow requires ResetOwner", def.Info.Key))
		}
	}

	registry[def.Info.Key] = def
}

// GetFlow returns a flow definition by key.
// Returns false if not found.
func GetFlow(key string) (FlowDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Flows returns all registered flow definitions sorted by key.
func Flows() []FlowDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FlowDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}
