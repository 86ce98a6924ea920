package domain

import "time"

type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// User is a confirmed account. PassHash may be an unusable hash for OAuth-only accounts.
type User struct {
	Id        UserId
	Email     Email
	PassHash  string
	Name      string
	AvatarURL string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// UserSummary is the part of a user that leaves the auth core and goes into access tokens.
type UserSummary struct {
	Id    UserId `json:"id"`
	Email Email  `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

func (u User) Summary() UserSummary {
	return UserSummary{Id: u.Id, Email: u.Email, Name: u.Name, Role: u.Role}
}

func (u UserSummary) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PendingUser is a registration waiting for email confirmation.
type PendingUser struct {
	Email     Email
	PassHash  string
	Name      string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
