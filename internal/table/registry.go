package table

import "github.com/lox/welltest/internal/models"

// Registry is the ordered column metadata kept alongside a Grid. It is
// positionally parallel to the grid's columns but its length is not
// enforced; see Reconcile.
type Registry struct {
	defs []models.ColumnDefinition
}

func NewRegistry(defs ...models.ColumnDefinition) *Registry {
	return &Registry{defs: append([]models.ColumnDefinition(nil), defs...)}
}

func (r *Registry) Len() int { return len(r.defs) }

// At returns the definition at i and whether it exists.
func (r *Registry) At(i int) (models.ColumnDefinition, bool) {
	if i < 0 || i >= len(r.defs) {
		return models.ColumnDefinition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Append(def models.ColumnDefinition) {
	r.defs = append(r.defs, def)
}

// Insert places def at i, or appends it when i is past the end.
func (r *Registry) Insert(i int, def models.ColumnDefinition) {
	if i < 0 {
		i = 0
	}
	if i >= len(r.defs) {
		r.defs = append(r.defs, def)
		return
	}
	r.defs = append(r.defs, models.ColumnDefinition{})
	copy(r.defs[i+1:], r.defs[i:])
	r.defs[i] = def
}

func (r *Registry) Remove(i int) bool {
	if i < 0 || i >= len(r.defs) {
		return false
	}
	r.defs = append(r.defs[:i], r.defs[i+1:]...)
	return true
}

// Replace swaps the whole list for defs.
func (r *Registry) Replace(defs []models.ColumnDefinition) {
	r.defs = append([]models.ColumnDefinition(nil), defs...)
}

func (r *Registry) Clear() { r.defs = nil }

func (r *Registry) All() []models.ColumnDefinition {
	return append([]models.ColumnDefinition(nil), r.defs...)
}

// IndexOfType returns the position of the first definition of type t, or -1.
func (r *Registry) IndexOfType(t models.ColumnType) int {
	for i, d := range r.defs {
		if d.Type == t {
			return i
		}
	}
	return -1
}

// Reconcile makes the registry exactly as long as headers: missing entries
// become default definitions named after their header, extra entries are
// dropped.
func (r *Registry) Reconcile(headers []string) {
	if len(r.defs) > len(headers) {
		r.defs = r.defs[:len(headers)]
		return
	}
	for i := len(r.defs); i < len(headers); i++ {
		r.defs = append(r.defs, models.NewColumnDefinition(headers[i]))
	}
}
