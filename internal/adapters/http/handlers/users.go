package handlers

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/app"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// UsersHandler exposes the user use cases over HTTP. Every request is one
// dispatcher call, so one unit of work.
type UsersHandler struct {
	dispatcher *app.Dispatcher
}

// NewUsersHandler creates a users handler.
func NewUsersHandler(dispatcher *app.Dispatcher) *UsersHandler {
	return &UsersHandler{dispatcher: dispatcher}
}

// UserRequest is the body of a create request and an import row. Keys in
// Extra become additional properties of the user.
type UserRequest struct {
	Name  string         `json:"name"            validate:"required,notempty,max=120"`
	Email string         `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Extra map[string]any `json:"extra,omitempty"`
}

// UpdateUserRequest changes the fields that are present. An empty email clears it.
type UpdateUserRequest struct {
	Name  *string        `json:"name,omitempty"  validate:"omitempty,notempty,max=120"`
	Email *string        `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Extra map[string]any `json:"extra,omitempty"`
}

// ImportUsersRequest is a batch stored all-or-nothing.
type ImportUsersRequest struct {
	Users []UserRequest `json:"users" validate:"required,min=1,max=1000,dive"`
}

// ListUsersRequest carries the list filters, sort and window.
type ListUsersRequest struct {
	dto.PageRequest

	Name       string `form:"name"`
	NamePrefix string `form:"name_prefix"`
	Email      string `form:"email"`
}

// UserResponse is a stored user.
type UserResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// UserListResponse is one window of users.
type UserListResponse = dto.PageResponse[*UserResponse]

// CountResponse is the total number of stored users.
type CountResponse struct {
	Count int64 `json:"count"`
}

func toUserResponse(u *domain.User) *UserResponse {
	id, _ := u.Identity()

	return &UserResponse{
		ID:        id,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		Extra:     u.Extra(),
	}
}

func toUserResponses(users []*domain.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}

	return out
}

func (r UserRequest) params() app.CreateUserParams {
	return app.CreateUserParams{Name: r.Name, Email: r.Email, Extra: r.Extra}
}

func (r ListUsersRequest) query() ports.Query {
	var conds []ports.Condition

	if r.Name != "" {
		conds = append(conds, ports.Eq("name", r.Name))
	}

	if r.NamePrefix != "" {
		conds = append(conds, ports.Prefix("name", r.NamePrefix))
	}

	if r.Email != "" {
		conds = append(conds, ports.Eq("email", r.Email))
	}

	return r.Apply(ports.Where(conds...))
}

// CreateUser handles POST /api/v1/users.
//
// @Summary Create a user
// @Tags users
// @Accept json
// @Produce json
// @Param user body UserRequest true "User"
// @Success 201 {object} UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/users [post]
func (h *UsersHandler) CreateUser(c *gin.Context) {
	var req UserRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	u, err := app.Dispatch[app.CreateUserParams, *domain.User](c.Request.Context(), h.dispatcher, app.UseCaseCreateUser, req.params())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	id, _ := u.Identity()
	c.Header("Location", c.FullPath()+"/"+strconv.FormatInt(id, 10))
	c.JSON(http.StatusCreated, toUserResponse(u))
}

// GetUser handles GET /api/v1/users/:id.
//
// @Summary Get a user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UsersHandler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	u, err := app.Dispatch[app.GetUserParams, *domain.User](c.Request.Context(), h.dispatcher, app.UseCaseGetUser, app.GetUserParams{ID: id})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(u))
}

// ListUsers handles GET /api/v1/users.
//
// @Summary List users
// @Tags users
// @Produce json
// @Param name query string false "Exact name"
// @Param name_prefix query string false "Name prefix"
// @Param email query string false "Exact email"
// @Param sort query string false "Sort fields, e.g. name,-created_at"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} UserListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/users [get]
func (h *UsersHandler) ListUsers(c *gin.Context) {
	var req ListUsersRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	q := req.query()

	users, err := app.Dispatch[app.ListUsersParams, []*domain.User](c.Request.Context(), h.dispatcher, app.UseCaseListUsers, app.ListUsersParams{Query: q})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPageResponse(toUserResponses(users), q.Page))
}

// CountUsers handles GET /api/v1/users/count.
//
// @Summary Count users
// @Tags users
// @Produce json
// @Success 200 {object} CountResponse
// @Router /api/v1/users/count [get]
func (h *UsersHandler) CountUsers(c *gin.Context) {
	n, err := app.Dispatch[app.CountUsersParams, int64](c.Request.Context(), h.dispatcher, app.UseCaseCountUsers, app.CountUsersParams{})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// UpdateUser handles PUT /api/v1/users/:id.
//
// @Summary Update a user
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param user body UpdateUserRequest true "Changes"
// @Success 200 {object} UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/users/{id} [put]
func (h *UsersHandler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	u, err := app.Dispatch[app.UpdateUserParams, *domain.User](c.Request.Context(), h.dispatcher, app.UseCaseUpdateUser,
		app.UpdateUserParams{ID: id, Name: req.Name, Email: req.Email, Extra: req.Extra})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(u))
}

// DeleteUser handles DELETE /api/v1/users/:id and returns the removed user.
//
// @Summary Delete a user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/users/{id} [delete]
func (h *UsersHandler) DeleteUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	u, err := app.Dispatch[app.DeleteUserParams, *domain.User](c.Request.Context(), h.dispatcher, app.UseCaseDeleteUser, app.DeleteUserParams{ID: id})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(u))
}

// ImportUsers handles POST /api/v1/users/import.
//
// @Summary Import users atomically
// @Tags users
// @Accept json
// @Produce json
// @Param batch body ImportUsersRequest true "Users"
// @Success 201 {object} UserListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/users/import [post]
func (h *UsersHandler) ImportUsers(c *gin.Context) {
	var req ImportUsersRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	params := app.ImportUsersParams{Users: make([]app.CreateUserParams, 0, len(req.Users))}
	for _, u := range req.Users {
		params.Users = append(params.Users, u.params())
	}

	res, err := app.Dispatch[app.ImportUsersParams, app.ImportResult](c.Request.Context(), h.dispatcher, app.UseCaseImportUsers, params)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewPageResponse(toUserResponses(res.Users), &ports.Page{Limit: len(res.Users)}))
}

// RegisterUserRoutes registers the user routes on rg. The write handlers run
// before every mutating route.
func (h *UsersHandler) RegisterUserRoutes(rg *gin.RouterGroup, write ...gin.HandlerFunc) {
	users := rg.Group("/users")
	guarded := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(write), handler)
	}

	users.GET("", h.ListUsers)
	users.GET("/count", h.CountUsers)
	users.GET("/:id", h.GetUser)

	users.POST("", guarded(h.CreateUser)...)
	users.POST("/import", guarded(h.ImportUsers)...)
	users.PUT("/:id", guarded(h.UpdateUser)...)
	users.DELETE("/:id", guarded(h.DeleteUser)...)
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		dto.RespondWithErrorCode(c, dto.ErrorCodeBadRequest, "user id must be a positive integer")
		return 0, false
	}

	return id, true
}
