package gateway

import (
	"strings"

	"github.com/whoami847/topup-payments/internal/models"
)

// Registry resolves a configured gateway record to the adapter that speaks
// its provider's protocol. Lookup is by the provider identity encoded in
// the gateway's name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by their
// canonical names.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[canonical(a.Name())] = a
	}
	return r
}

// Resolve returns the adapter for the gateway, or nil when no adapter is
// registered for its provider. Callers turn nil into an "unsupported
// gateway" error rather than panicking deep in a request.
func (r *Registry) Resolve(gw *models.Gateway) Adapter {
	if gw == nil {
		return nil
	}
	return r.adapters[canonical(gw.Name)]
}

func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "-", "")
	return name
}
