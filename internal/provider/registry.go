package provider

import (
	"fmt"

	"wager-escrow-go/internal/models"
)

// Registry maps game types to their adapters.
type Registry struct {
	adapters map[models.GameType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.GameType]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.GameType()] = a
}

func (r *Registry) Lookup(gt models.GameType) (Adapter, error) {
	a, ok := r.adapters[gt]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for game type %s", gt)
	}
	return a, nil
}

// GameTypes returns every registered game type.
func (r *Registry) GameTypes() []models.GameType {
	types := make([]models.GameType, 0, len(r.adapters))
	for _, gt := range models.AllGameTypes {
		if _, ok := r.adapters[gt]; ok {
			types = append(types, gt)
		}
	}
	return types
}
