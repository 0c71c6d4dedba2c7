package provider

import (
	"sort"
	"strings"
)

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	items := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		items[strings.ToLower(p.ID())] = p
	}
	return &Registry{providers: items}
}

func (r *Registry) Get(id string) (Provider, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

// IDs returns the registered provider ids in a stable order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MatchNotification finds the first provider that recognises the payload.
func (r *Registry) MatchNotification(params map[string]string) (Provider, NotificationFields, bool) {
	for _, id := range r.IDs() {
		p := r.providers[id]
		if fields, ok := p.ParseNotification(params); ok {
			return p, fields, true
		}
	}
	return nil, NotificationFields{}, false
}
