package persona

// Store exposes persona lookup for sessions and handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps personas in a fixed slice; it is read-only after construction.
type MemoryStore struct {
	items []Persona
}

func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID 查找 persona，空 id 视为默认助手。
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	if id == "" {
		id = DefaultID
	}
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}
