package ports

import (
	"slices"
	"sync"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

// Registry families. Names are scoped to a family, so "users" may be bound in
// the repository and service registries at the same time.
const (
	FamilyRepositories = "repository"
	FamilyServices     = "service"
	FamilyUseCases     = "use case"
)

// Locator is the read side of a registry, which is all a use case needs.
type Locator[T any] interface {
	Get(name string) (T, error)
}

// Registry binds names to implementations for one capability family.
//
// Registering under a name that is already bound replaces the earlier binding.
// Registration is expected during startup, but the table is mutex guarded so
// late registration from another goroutine is safe. The zero Registry is empty
// and ready to use; NewRegistry also names the family for lookup errors.
type Registry[T any] struct {
	family string

	mu       sync.RWMutex
	bindings map[string]T
}

// NewRegistry creates an empty registry for a family.
func NewRegistry[T any](family string) *Registry[T] {
	return &Registry[T]{
		family:   family,
		bindings: make(map[string]T),
	}
}

// Family returns the capability family named in lookup errors.
func (r *Registry[T]) Family() string {
	return r.family
}

// Register binds impl to name, replacing any earlier binding.
func (r *Registry[T]) Register(impl T, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bindings == nil {
		r.bindings = make(map[string]T)
	}

	r.bindings[name] = impl
}

// Get returns the implementation bound to name, or domain.UnboundNameError.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.bindings[name]
	if !ok {
		var zero T
		return zero, domain.NewUnboundNameError(r.family, name)
	}

	return impl, nil
}

// Names lists the bound names in lexical order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Registries groups the three capability families a process wires at startup.
type Registries struct {
	Repositories *Registry[RepositoryFactory]
	Services     *Registry[any]
	UseCases     *Registry[UseCaseBinding]
}

// NewRegistries creates three empty, independent registries.
func NewRegistries() Registries {
	return Registries{
		Repositories: NewRegistry[RepositoryFactory](FamilyRepositories),
		Services:     NewRegistry[any](FamilyServices),
		UseCases:     NewRegistry[UseCaseBinding](FamilyUseCases),
	}
}
