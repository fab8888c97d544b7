package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/userstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

func ptr[T any](v T) *T { return &v }

func TestCreateUser_Ada(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := Dispatch[CreateUserParams, *domain.User](ctx, h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	id, ok := u.Identity()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "Ada", u.Name)
	assert.False(t, u.CreatedAt.IsZero())

	all, err := Dispatch[ListUsersParams, []*domain.User](ctx, h.dispatcher, UseCaseListUsers, ListUsersParams{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ada@example.com", all[0].Email)

	assert.Equal(t, int64(1), h.count(t))
	assert.Equal(t, []string{domain.EventUserCreated}, h.sink.types())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.UseCaseRuns.WithLabelValues(UseCaseCreateUser, "ok")), 0)
}

func TestCreateUser_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		params   CreateUserParams
		errCheck func(error) bool
		step     ExecutionStep
	}{
		{
			name:     "blank name",
			params:   CreateUserParams{Name: "   "},
			errCheck: domain.IsValidation,
			step:     StepValidate,
		},
		{
			name:     "malformed email",
			params:   CreateUserParams{Name: "Ada", Email: "not-an-email"},
			errCheck: domain.IsValidation,
			step:     StepValidate,
		},
		{
			name:     "identity supplied as extra",
			params:   CreateUserParams{Name: "Ada", Extra: map[string]any{domain.IdentityKey: 7}},
			errCheck: domain.IsInvalidState,
			step:     StepPerform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser, tt.params)
			require.Error(t, err)
			assert.True(t, tt.errCheck(err), "unexpected error: %v", err)

			step, ok := GetExecutionStep(err)
			require.True(t, ok)
			assert.Equal(t, tt.step, step)

			assert.Zero(t, h.count(t))
			assert.Empty(t, h.sink.types())
		})
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Ada", "ada@example.com")

	_, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: "Imposter", Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
	assert.True(t, domain.IsConflict(err))

	assert.Equal(t, int64(1), h.count(t))
	assert.Equal(t, []string{domain.EventUserCreated}, h.sink.types())
}

func TestCreateUser_Normalized(t *testing.T) {
	h := newHarness(t)
	h.registries.Services.Register(NewNormalizer(WithTitleCaseNames()), ServiceNormalizer)

	u, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: "  ada   lovelace ", Email: " ADA@Example.COM "})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestCreateUser_ExtraProperties(t *testing.T) {
	h := newHarness(t)

	u, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: "Ada", Extra: map[string]any{"nickname": "countess"}})
	require.NoError(t, err)

	// Extras are not columns, so the lenient mapper drops them on the way in.
	_, ok := u.ExtraValue("nickname")
	assert.False(t, ok)
}

func TestGetUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "Ada", "ada@example.com")

	u, err := Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	_, err = Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: id + 1})
	assert.True(t, domain.IsNotFound(err))

	_, err = Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: 0})
	assert.True(t, domain.IsValidation(err))
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "Ada", "ada@example.com")

	before, err := Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: id})
	require.NoError(t, err)

	u, err := Dispatch[UpdateUserParams, *domain.User](ctx, h.dispatcher, UseCaseUpdateUser,
		UpdateUserParams{ID: id, Name: ptr("Ada Lovelace")})
	require.NoError(t, err)

	gotID, _ := u.Identity()
	assert.Equal(t, id, gotID)
	assert.Equal(t, "Ada Lovelace", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.True(t, before.CreatedAt.Equal(u.CreatedAt))
	assert.Equal(t, []string{domain.EventUserCreated, domain.EventUserUpdated}, h.sink.types())

	t.Run("invalid change leaves the stored user alone", func(t *testing.T) {
		_, err := Dispatch[UpdateUserParams, *domain.User](ctx, h.dispatcher, UseCaseUpdateUser,
			UpdateUserParams{ID: id, Email: ptr("nope")})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))

		u, err := Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: id})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", u.Email)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := Dispatch[UpdateUserParams, *domain.User](ctx, h.dispatcher, UseCaseUpdateUser,
			UpdateUserParams{ID: id + 10, Name: ptr("Ghost")})
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestDeleteUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "Ada", "ada@example.com")

	u, err := Dispatch[DeleteUserParams, *domain.User](ctx, h.dispatcher, UseCaseDeleteUser, DeleteUserParams{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	_, err = Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseGetUser, GetUserParams{ID: id})
	assert.True(t, domain.IsNotFound(err))

	_, err = Dispatch[DeleteUserParams, *domain.User](ctx, h.dispatcher, UseCaseDeleteUser, DeleteUserParams{ID: id})
	assert.True(t, domain.IsNotFound(err))

	assert.Zero(t, h.count(t))
	assert.Equal(t, []string{domain.EventUserCreated, domain.EventUserDeleted}, h.sink.types())
}

func TestListUsers_Query(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, name := range []string{"Ada", "Grace", "Alan", "Edsger"} {
		h.create(t, name, "")
	}

	tests := []struct {
		name  string
		query ports.Query
		want  []string
	}{
		{
			name: "everything in identity order",
			want: []string{"Ada", "Grace", "Alan", "Edsger"},
		},
		{
			name:  "prefix sorted descending",
			query: ports.Where(ports.Prefix("name", "A")).OrderBy(ports.Desc("name")),
			want:  []string{"Alan", "Ada"},
		},
		{
			name:  "second page",
			query: ports.Query{}.OrderBy(ports.Asc("name")).Window(ports.PageNumber(2, 2)),
			want:  []string{"Edsger", "Grace"},
		},
		{
			name:  "no match",
			query: ports.Where(ports.Eq("name", "Barbara")),
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := Dispatch[ListUsersParams, []*domain.User](ctx, h.dispatcher, UseCaseListUsers,
				ListUsersParams{Query: tt.query})
			require.NoError(t, err)

			names := make([]string, len(users))
			for i, u := range users {
				names[i] = u.Name
			}

			assert.Equal(t, tt.want, names)
		})
	}

	assert.Equal(t, int64(4), h.count(t))
}

func TestImportUsers(t *testing.T) {
	t.Run("all stored", func(t *testing.T) {
		h := newHarness(t)

		res, err := Dispatch[ImportUsersParams, ImportResult](context.Background(), h.dispatcher, UseCaseImportUsers,
			ImportUsersParams{Users: []CreateUserParams{
				{Name: "Ada", Email: "ada@example.com"},
				{Name: "Grace", Email: "grace@example.com"},
				{Name: "Alan"},
			}})
		require.NoError(t, err)
		require.Len(t, res.Users, 3)

		for i, u := range res.Users {
			id, ok := u.Identity()
			require.True(t, ok)
			assert.Equal(t, int64(i+1), id)
		}

		assert.Equal(t, int64(3), h.count(t))
		assert.Len(t, h.sink.types(), 3)
	})

	t.Run("none stored when one fails", func(t *testing.T) {
		h := newHarness(t)

		_, err := Dispatch[ImportUsersParams, ImportResult](context.Background(), h.dispatcher, UseCaseImportUsers,
			ImportUsersParams{Users: []CreateUserParams{
				{Name: "Ada", Email: "ada@example.com"},
				{Name: "Ada again", Email: "ada@example.com"},
			}})
		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
		assert.ErrorContains(t, err, "user 1")

		assert.Zero(t, h.count(t))
		assert.Empty(t, h.sink.types())
	})

	t.Run("invalid row rejects the batch before writing", func(t *testing.T) {
		h := newHarness(t)

		_, err := Dispatch[ImportUsersParams, ImportResult](context.Background(), h.dispatcher, UseCaseImportUsers,
			ImportUsersParams{Users: []CreateUserParams{{Name: "Ada"}, {Name: ""}}})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))

		step, _ := GetExecutionStep(err)
		assert.Equal(t, StepValidate, step)
		assert.Zero(t, h.count(t))
	})

	t.Run("empty batch", func(t *testing.T) {
		h := newHarness(t)

		_, err := Dispatch[ImportUsersParams, ImportResult](context.Background(), h.dispatcher, UseCaseImportUsers,
			ImportUsersParams{})
		assert.True(t, domain.IsValidation(err))
	})
}

var (
	errCommitLost   = errors.New("commit lost")
	errRollbackLost = errors.New("rollback lost")
)

// stuckSession writes through a real session but cannot finish its unit.
type stuckSession struct {
	*sqlstore.Session
}

func (stuckSession) Commit(context.Context) error { return errCommitLost }

func (s stuckSession) Rollback(ctx context.Context) error {
	_ = s.Session.Rollback(ctx)
	return errRollbackLost
}

func TestImportUsers_CommitFailureReportsRollback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opened, err := h.store.OpenSession(ctx)
	require.NoError(t, err)

	inner, err := sqlstore.SessionOf(opened)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close(ctx) })

	repos := ports.NewRegistry[ports.RepositoryFactory](ports.FamilyRepositories)
	repos.Register(func(ports.Session) (any, error) { return userstore.New(inner, false), nil }, RepositoryUsers)

	_, err = ImportUsers{exec: NewExecutor(discardLogger())}.Execute(ctx, ports.Request[ImportUsersParams]{
		Deps: ports.Deps{
			Repos:    repos,
			Services: ports.NewRegistry[any](ports.FamilyServices),
			Session:  stuckSession{inner},
		},
		Params: ImportUsersParams{Users: []CreateUserParams{{Name: "Ada"}, {Name: "Grace"}}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
	assert.ErrorIs(t, err, errCommitLost)
	assert.ErrorIs(t, err, errRollbackLost, "the rollback failure is reported with the commit failure")
	assert.Zero(t, h.count(t))
}

func TestDispatcher_Execute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.dispatcher.Execute(ctx, UseCaseCreateUser, CreateUserParams{Name: "Ada"})
	require.NoError(t, err)

	u, ok := out.(*domain.User)
	require.True(t, ok)
	assert.True(t, u.HasIdentity())

	t.Run("unbound use case", func(t *testing.T) {
		_, err := h.dispatcher.Execute(ctx, "users.archive", nil)
		assert.True(t, domain.IsUnboundName(err))
	})

	t.Run("wrong parameter type", func(t *testing.T) {
		_, err := h.dispatcher.Execute(ctx, UseCaseCreateUser, GetUserParams{ID: 1})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("typed dispatch with the wrong parameter type", func(t *testing.T) {
		_, err := Dispatch[GetUserParams, *domain.User](ctx, h.dispatcher, UseCaseCreateUser, GetUserParams{ID: 1})
		assert.True(t, domain.IsValidation(err))
	})
}

func TestResponseAs(t *testing.T) {
	u := &domain.User{Name: "Ada"}

	got, err := responseAs[*domain.User](UseCaseGetUser, u)
	require.NoError(t, err)
	assert.Same(t, u, got)

	none, err := responseAs[ports.Event](UseCaseDeleteUser, nil)
	require.NoError(t, err, "a nil result is the zero response")
	assert.Nil(t, none)

	_, err = responseAs[int64](UseCaseCountUsers, u)
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err), "a mismatched response is not dropped")
	assert.Contains(t, err.Error(), "*domain.User")
}

func TestDispatcher_UnboundRepository(t *testing.T) {
	h := newHarness(t)

	regs := ports.NewRegistries()
	RegisterUserUseCases(regs.UseCases, NewExecutor(discardLogger()))

	d := NewDispatcher(DispatcherConfig{Sessions: h.store, Registries: &regs})

	_, err := Dispatch[CountUsersParams, int64](context.Background(), d, UseCaseCountUsers, CountUsersParams{})
	require.Error(t, err)
	assert.True(t, domain.IsUnboundName(err))

	var unbound *domain.UnboundNameError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, RepositoryUsers, unbound.Name)
}

func TestDispatcher_PublishFailureKeepsCommit(t *testing.T) {
	h := newHarness(t)
	h.sink.err = domain.NewUnavailableError("memory", "full")

	u, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: "Ada"})
	require.NoError(t, err)
	assert.True(t, u.HasIdentity())
	assert.Equal(t, int64(1), h.count(t))
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.EventsPublished.WithLabelValues("memory", "error")), 0)
}

func TestDispatcher_NoPublisherBound(t *testing.T) {
	h := newHarness(t)

	regs := ports.NewRegistries()
	regs.Repositories = h.registries.Repositories
	regs.UseCases = h.registries.UseCases

	d := NewDispatcher(DispatcherConfig{Sessions: h.store, Registries: &regs})

	_, err := Dispatch[CreateUserParams, *domain.User](context.Background(), d, UseCaseCreateUser,
		CreateUserParams{Name: "Ada"})
	require.NoError(t, err)
	assert.Empty(t, h.sink.types())
}

func TestDispatcher_OpenSessionFails(t *testing.T) {
	regs := ports.NewRegistries()
	d := NewDispatcher(DispatcherConfig{Sessions: failingOpener{}, Registries: &regs})

	_, err := d.Execute(context.Background(), UseCaseCountUsers, CountUsersParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoConnection)
}

var errNoConnection = errors.New("no connection")

type failingOpener struct{}

func (failingOpener) OpenSession(context.Context) (ports.Session, error) {
	return nil, errNoConnection
}
