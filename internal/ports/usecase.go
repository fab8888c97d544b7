package ports

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

// Deps is what every use case request carries: the repository and service
// registries and the session of the current unit of work.
type Deps struct {
	Repos    Locator[RepositoryFactory]
	Services Locator[any]
	Session  Session
}

// Request bundles the dependencies with the operation's parameters. It is passed
// by value, so a use case cannot change the caller's copy.
type Request[P any] struct {
	Deps

	Params P
}

// UseCase is one business operation.
type UseCase[P, R any] interface {
	Execute(ctx context.Context, req Request[P]) (R, error)
}

// UseCaseFunc adapts a function to UseCase.
type UseCaseFunc[P, R any] func(ctx context.Context, req Request[P]) (R, error)

// Execute implements UseCase.
func (f UseCaseFunc[P, R]) Execute(ctx context.Context, req Request[P]) (R, error) {
	return f(ctx, req)
}

// UseCaseBinding is what the use case registry stores: an implementation paired
// with the request type it accepts.
type UseCaseBinding struct {
	RequestType  reflect.Type
	ResponseType reflect.Type

	impl   any
	invoke func(ctx context.Context, deps Deps, params any) (any, error)
}

// BindUseCase pairs a use case with its request type.
func BindUseCase[P, R any](uc UseCase[P, R]) UseCaseBinding {
	reqType := reflect.TypeFor[P]()

	return UseCaseBinding{
		RequestType:  reqType,
		ResponseType: reflect.TypeFor[R](),
		impl:         uc,
		invoke: func(ctx context.Context, deps Deps, params any) (any, error) {
			var p P

			if params != nil {
				typed, ok := params.(P)
				if !ok {
					return nil, domain.NewValidationErrorWithValue("params",
						fmt.Sprintf("expected %s, got %T", reqType, params), params)
				}

				p = typed
			}

			return uc.Execute(ctx, Request[P]{Deps: deps, Params: p})
		},
	}
}

// Implementation returns the bound use case.
func (b UseCaseBinding) Implementation() any {
	return b.impl
}

// Execute runs the bound use case with untyped parameters. Parameters of the
// wrong type are rejected with domain.ValidationError before the use case runs.
func (b UseCaseBinding) Execute(ctx context.Context, deps Deps, params any) (any, error) {
	if b.invoke == nil {
		return nil, domain.NewInvalidStateError("use case", "execute", "binding is empty")
	}

	return b.invoke(ctx, deps, params)
}

// ExecuteUseCase resolves a use case by name and runs it with typed parameters
// and a typed response.
func ExecuteUseCase[P, R any](ctx context.Context, useCases Locator[UseCaseBinding], name string, deps Deps, params P) (R, error) {
	var zero R

	binding, err := useCases.Get(name)
	if err != nil {
		return zero, err
	}

	if want := reflect.TypeFor[P](); binding.RequestType != want {
		return zero, domain.NewValidationError("params",
			fmt.Sprintf("use case %q takes %s, not %s", name, binding.RequestType, want))
	}

	out, err := binding.Execute(ctx, deps, params)
	if err != nil {
		return zero, err
	}

	if out == nil {
		return zero, nil
	}

	res, ok := out.(R)
	if !ok {
		return zero, domain.NewInvalidStateError("use case "+name, "read response",
			fmt.Sprintf("response is %T, not %s", out, reflect.TypeFor[R]()))
	}

	return res, nil
}

// ResolveRepository builds the repository bound to name on the request's session.
func ResolveRepository[T domain.Entity](deps Deps, name string) (Repository[T], error) {
	factory, err := deps.Repos.Get(name)
	if err != nil {
		return nil, err
	}

	built, err := factory(deps.Session)
	if err != nil {
		return nil, fmt.Errorf("building repository %q: %w", name, err)
	}

	repo, ok := built.(Repository[T])
	if !ok {
		return nil, domain.NewInvalidStateError(FamilyRepositories+" "+name, "resolve",
			fmt.Sprintf("bound %T is not a repository of %s", built, reflect.TypeFor[T]()))
	}

	return repo, nil
}

// ResolveService returns the service bound to name as S.
func ResolveService[S any](deps Deps, name string) (S, error) {
	var zero S

	impl, err := deps.Services.Get(name)
	if err != nil {
		return zero, err
	}

	svc, ok := impl.(S)
	if !ok {
		return zero, domain.NewInvalidStateError(FamilyServices+" "+name, "resolve",
			fmt.Sprintf("bound %T does not implement %s", impl, reflect.TypeFor[S]()))
	}

	return svc, nil
}
