package domain

import (
	"strings"
	"time"
)

// UserEntity is the entity name used in errors, logs and metrics.
const UserEntity = "user"

// User is the sample value object exercised by the use cases and the stores.
// CreatedAt is populated by the storage engine and is zero until the value is persisted.
type User struct {
	Base `mapstructure:"-"`

	Name      string    `mapstructure:"name"       validate:"required,max=120"`
	Email     string    `mapstructure:"email"      validate:"omitempty,email,max=254"`
	CreatedAt time.Time `mapstructure:"created_at"`
}

// NewUser constructs a validated, not yet persisted user.
func NewUser(name, email string) (*User, error) {
	return Construct(&User{Name: name, Email: email})
}

// EntityName implements Entity.
func (*User) EntityName() string {
	return UserEntity
}

// CheckInvariants implements Rule.
func (u *User) CheckInvariants() error {
	if strings.TrimSpace(u.Name) == "" {
		return NewValidationErrorWithValue("name", "must not be blank", u.Name)
	}

	return nil
}
