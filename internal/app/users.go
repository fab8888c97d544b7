package app

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/app/outbox"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// Registry names used by the user use cases.
const (
	RepositoryUsers = "users"

	ServiceNormalizer = "normalizer"
	ServiceEvents     = "events"

	UseCaseCreateUser  = "users.create"
	UseCaseGetUser     = "users.get"
	UseCaseListUsers   = "users.list"
	UseCaseUpdateUser  = "users.update"
	UseCaseDeleteUser  = "users.delete"
	UseCaseCountUsers  = "users.count"
	UseCaseImportUsers = "users.import"
)

// CreateUserParams describes a new user. Extra keys become additional properties.
type CreateUserParams struct {
	Name  string
	Email string
	Extra map[string]any
}

// GetUserParams selects a user by identity.
type GetUserParams struct {
	ID int64
}

// ListUsersParams filters, sorts and pages users.
type ListUsersParams struct {
	Query ports.Query
}

// UpdateUserParams changes the fields that are set. Extra keys are merged into
// the additional properties.
type UpdateUserParams struct {
	ID    int64
	Name  *string
	Email *string
	Extra map[string]any
}

// DeleteUserParams selects the user to delete.
type DeleteUserParams struct {
	ID int64
}

// CountUsersParams takes nothing; Count ignores filters.
type CountUsersParams struct{}

// ImportUsersParams is a batch of users stored atomically.
type ImportUsersParams struct {
	Users []CreateUserParams
}

// ImportResult lists the stored users in input order.
type ImportResult struct {
	Users []*domain.User
}

// RegisterUserUseCases binds every user use case under its name.
func RegisterUserUseCases(useCases *ports.Registry[ports.UseCaseBinding], exec *Executor) {
	useCases.Register(ports.BindUseCase[CreateUserParams, *domain.User](CreateUser{exec: exec}), UseCaseCreateUser)
	useCases.Register(ports.BindUseCase[GetUserParams, *domain.User](GetUser{exec: exec}), UseCaseGetUser)
	useCases.Register(ports.BindUseCase[ListUsersParams, []*domain.User](ListUsers{exec: exec}), UseCaseListUsers)
	useCases.Register(ports.BindUseCase[UpdateUserParams, *domain.User](UpdateUser{exec: exec}), UseCaseUpdateUser)
	useCases.Register(ports.BindUseCase[DeleteUserParams, *domain.User](DeleteUser{exec: exec}), UseCaseDeleteUser)
	useCases.Register(ports.BindUseCase[CountUsersParams, int64](CountUsers{exec: exec}), UseCaseCountUsers)
	useCases.Register(ports.BindUseCase[ImportUsersParams, ImportResult](ImportUsers{exec: exec}), UseCaseImportUsers)
}

// CreateUser stores a new user and announces it.
type CreateUser struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc CreateUser) Execute(ctx context.Context, req ports.Request[CreateUserParams]) (*domain.User, error) {
	var (
		repo ports.Repository[*domain.User]
		user *domain.User
	)

	return Execute(ctx, uc.exec, Operation[CreateUserParams, *domain.User, *domain.User, *domain.User]{
		Name: UseCaseCreateUser,
		Validate: func(ctx context.Context, p CreateUserParams) error {
			var err error
			if repo, err = usersRepository(req.Deps); err != nil {
				return err
			}

			user, err = buildUser(ctx, req.Deps, p.fields())

			return err
		},
		Perform: func(ctx context.Context, _ CreateUserParams) (*domain.User, error) {
			return repo.Insert(ctx, user)
		},
		Verify:  verifyStored[CreateUserParams],
		Archive: announce[CreateUserParams](req.Deps, domain.EventUserCreated),
		Respond: respondUser[CreateUserParams],
	}, req.Params)
}

// GetUser loads one user.
type GetUser struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc GetUser) Execute(ctx context.Context, req ports.Request[GetUserParams]) (*domain.User, error) {
	var repo ports.Repository[*domain.User]

	return Execute(ctx, uc.exec, Operation[GetUserParams, *domain.User, *domain.User, *domain.User]{
		Name: UseCaseGetUser,
		Validate: func(_ context.Context, p GetUserParams) error {
			var err error
			if repo, err = usersRepository(req.Deps); err != nil {
				return err
			}

			return validID(p.ID)
		},
		Perform: func(ctx context.Context, p GetUserParams) (*domain.User, error) {
			return repo.Get(ctx, p.ID)
		},
		Verify:  verifyStored[GetUserParams],
		Respond: respondUser[GetUserParams],
	}, req.Params)
}

// ListUsers runs a query over users.
type ListUsers struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc ListUsers) Execute(ctx context.Context, req ports.Request[ListUsersParams]) ([]*domain.User, error) {
	var repo ports.Repository[*domain.User]

	return Execute(ctx, uc.exec, Operation[ListUsersParams, []*domain.User, []*domain.User, []*domain.User]{
		Name: UseCaseListUsers,
		Validate: func(context.Context, ListUsersParams) error {
			var err error
			repo, err = usersRepository(req.Deps)

			return err
		},
		Perform: func(ctx context.Context, p ListUsersParams) ([]*domain.User, error) {
			return repo.Query(ctx, p.Query)
		},
		Verify: func(_ context.Context, _ ListUsersParams, users []*domain.User) ([]*domain.User, error) {
			return users, nil
		},
		Respond: func(_ context.Context, _ ListUsersParams, users []*domain.User) ([]*domain.User, error) {
			return users, nil
		},
	}, req.Params)
}

// UpdateUser changes a stored user.
type UpdateUser struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc UpdateUser) Execute(ctx context.Context, req ports.Request[UpdateUserParams]) (*domain.User, error) {
	var repo ports.Repository[*domain.User]

	return Execute(ctx, uc.exec, Operation[UpdateUserParams, *domain.User, *domain.User, *domain.User]{
		Name: UseCaseUpdateUser,
		Validate: func(_ context.Context, p UpdateUserParams) error {
			var err error
			if repo, err = usersRepository(req.Deps); err != nil {
				return err
			}

			return validID(p.ID)
		},
		Perform: func(ctx context.Context, p UpdateUserParams) (*domain.User, error) {
			current, err := repo.Get(ctx, p.ID)
			if err != nil {
				return nil, err
			}

			changed, err := buildUser(ctx, req.Deps, p.apply(current))
			if err != nil {
				return nil, err
			}

			return repo.Update(ctx, changed)
		},
		Verify:  verifyStored[UpdateUserParams],
		Archive: announce[UpdateUserParams](req.Deps, domain.EventUserUpdated),
		Respond: respondUser[UpdateUserParams],
	}, req.Params)
}

// DeleteUser removes a stored user and returns its last state.
type DeleteUser struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc DeleteUser) Execute(ctx context.Context, req ports.Request[DeleteUserParams]) (*domain.User, error) {
	var repo ports.Repository[*domain.User]

	return Execute(ctx, uc.exec, Operation[DeleteUserParams, *domain.User, *domain.User, *domain.User]{
		Name: UseCaseDeleteUser,
		Validate: func(_ context.Context, p DeleteUserParams) error {
			var err error
			if repo, err = usersRepository(req.Deps); err != nil {
				return err
			}

			return validID(p.ID)
		},
		Perform: func(ctx context.Context, p DeleteUserParams) (*domain.User, error) {
			current, err := repo.Get(ctx, p.ID)
			if err != nil {
				return nil, err
			}

			return repo.Delete(ctx, current)
		},
		Verify:  verifyStored[DeleteUserParams],
		Archive: announce[DeleteUserParams](req.Deps, domain.EventUserDeleted),
		Respond: respondUser[DeleteUserParams],
	}, req.Params)
}

// CountUsers counts every stored user.
type CountUsers struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc CountUsers) Execute(ctx context.Context, req ports.Request[CountUsersParams]) (int64, error) {
	var repo ports.Repository[*domain.User]

	return Execute(ctx, uc.exec, Operation[CountUsersParams, int64, int64, int64]{
		Name: UseCaseCountUsers,
		Validate: func(context.Context, CountUsersParams) error {
			var err error
			repo, err = usersRepository(req.Deps)

			return err
		},
		Perform: func(ctx context.Context, _ CountUsersParams) (int64, error) {
			return repo.Count(ctx)
		},
		Verify: func(_ context.Context, _ CountUsersParams, n int64) (int64, error) {
			return n, nil
		},
		Respond: func(_ context.Context, _ CountUsersParams, n int64) (int64, error) {
			return n, nil
		},
	}, req.Params)
}

// ImportUsers stores a batch in one unit of work: either every user is stored
// or none is.
type ImportUsers struct {
	exec *Executor
}

// Execute implements ports.UseCase.
func (uc ImportUsers) Execute(ctx context.Context, req ports.Request[ImportUsersParams]) (ImportResult, error) {
	var (
		repo  ports.Repository[*domain.User]
		batch []*domain.User
	)

	return Execute(ctx, uc.exec, Operation[ImportUsersParams, []*domain.User, []*domain.User, ImportResult]{
		Name: UseCaseImportUsers,
		Validate: func(ctx context.Context, p ImportUsersParams) error {
			var err error
			if repo, err = usersRepository(req.Deps); err != nil {
				return err
			}

			if len(p.Users) == 0 {
				return domain.NewValidationError("users", "at least one user is required")
			}

			batch = make([]*domain.User, len(p.Users))
			for i, up := range p.Users {
				if batch[i], err = buildUser(ctx, req.Deps, up.fields()); err != nil {
					return fmt.Errorf("user %d: %w", i, err)
				}
			}

			return nil
		},
		Perform: func(ctx context.Context, _ ImportUsersParams) ([]*domain.User, error) {
			stored := make([]*domain.User, 0, len(batch))

			for i, u := range batch {
				out, err := repo.Insert(ctx, u, ports.WithoutCommit())
				if err != nil {
					return nil, fmt.Errorf("user %d: %w", i, err)
				}

				stored = append(stored, out)
			}

			if err := req.Session.Commit(ctx); err != nil {
				return nil, domain.NewPersistenceError(domain.UserEntity, "import",
					errors.Join(err, req.Session.Rollback(ctx)))
			}

			return stored, nil
		},
		Verify: func(ctx context.Context, p ImportUsersParams, stored []*domain.User) ([]*domain.User, error) {
			if len(stored) != len(p.Users) {
				return nil, domain.NewInvalidStateError(domain.UserEntity, "import",
					fmt.Sprintf("stored %d of %d users", len(stored), len(p.Users)))
			}

			for _, u := range stored {
				if _, err := verifyStored(ctx, p, u); err != nil {
					return nil, err
				}
			}

			return stored, nil
		},
		Archive: func(ctx context.Context, _ ImportUsersParams, stored []*domain.User) error {
			for _, u := range stored {
				if err := stageEvent(ctx, req.Deps, domain.EventUserCreated, u); err != nil {
					return err
				}
			}

			return nil
		},
		Respond: func(_ context.Context, _ ImportUsersParams, stored []*domain.User) (ImportResult, error) {
			return ImportResult{Users: stored}, nil
		},
	}, req.Params)
}

func (p CreateUserParams) fields() UserFields {
	fields := make(UserFields, len(p.Extra)+2)
	maps.Copy(fields, p.Extra)
	fields["name"] = p.Name

	if p.Email != "" {
		fields["email"] = p.Email
	}

	return fields
}

// apply overlays the requested changes on the stored state.
func (p UpdateUserParams) apply(current *domain.User) UserFields {
	fields := make(UserFields, len(p.Extra)+4)
	maps.Copy(fields, current.Extra())
	maps.Copy(fields, p.Extra)

	id, _ := current.Identity()
	fields[domain.IdentityKey] = id
	fields["name"] = current.Name
	fields["email"] = current.Email
	fields["created_at"] = current.CreatedAt

	if p.Name != nil {
		fields["name"] = *p.Name
	}

	if p.Email != nil {
		fields["email"] = *p.Email
	}

	return fields
}

func usersRepository(deps ports.Deps) (ports.Repository[*domain.User], error) {
	return ports.ResolveRepository[*domain.User](deps, RepositoryUsers)
}

// buildUser normalizes the fields when a normalizer is bound, then constructs
// a validated user.
func buildUser(ctx context.Context, deps ports.Deps, fields UserFields) (*domain.User, error) {
	svc, err := ports.ResolveService[ports.Service[UserFields, UserFields]](deps, ServiceNormalizer)

	switch {
	case err == nil:
		if fields, err = svc.Run(ctx, fields); err != nil {
			return nil, fmt.Errorf("normalizing user: %w", err)
		}
	case !domain.IsUnboundName(err):
		return nil, err
	}

	return domain.FromMap[domain.User](fields)
}

func validID(id int64) error {
	if id <= 0 {
		return domain.NewValidationErrorWithValue("id", "must be positive", id)
	}

	return nil
}

func verifyStored[I any](_ context.Context, _ I, u *domain.User) (*domain.User, error) {
	if u == nil || !u.HasIdentity() {
		return nil, domain.NewInvalidStateError(domain.UserEntity, "verify", "repository returned a user without identity")
	}

	return u, nil
}

func respondUser[I any](_ context.Context, _ I, u *domain.User) (*domain.User, error) {
	return u, nil
}

func announce[I any](deps ports.Deps, eventType string) func(context.Context, I, *domain.User) error {
	return func(ctx context.Context, _ I, u *domain.User) error {
		return stageEvent(ctx, deps, eventType, u)
	}
}

// stageEvent queues a change event in the request outbox. Without an outbox or
// a bound publisher there is nobody to tell, and nothing is staged.
func stageEvent(ctx context.Context, deps ports.Deps, eventType string, u *domain.User) error {
	ob := outbox.FromContext(ctx)
	if ob == nil {
		return nil
	}

	pub, err := ports.ResolveService[ports.EventPublisher](deps, ServiceEvents)
	if domain.IsUnboundName(err) {
		return nil
	}

	if err != nil {
		return err
	}

	data := map[string]any{"name": u.Name}
	if u.Email != "" {
		data["email"] = u.Email
	}

	return ob.Stage(outbox.Publish(pub, domain.NewChangeEvent(eventType, u, data)))
}
