package model

import "time"

// UserType is the role of an account.  It is embedded in access tokens as the
// "role" claim and checked by middleware.RequireRole.
type UserType string

const (
	UserTypeFarmer UserType = "farmer"
	UserTypeExpert UserType = "expert"
	UserTypeAdmin  UserType = "admin"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeFarmer, UserTypeExpert, UserTypeAdmin:
		return true
	}
	return false
}

// User represents an account as stored in the `users` table.
//
// Fields:
//
//	ID               – UUID primary key.
//	Username         – unique, lower-cased handle.
//	Email            – unique, lower-cased address.
//	PasswordHash     – bcrypt hash; never serialised.
//	FullName         – display name.
//	UserType         – farmer, expert or admin.
//	MobileNo         – contact number.
//	Specialization   – free text collected at expert sign-up.
//	ProfileImage     – URL in the upload store, if any.
//	RefreshTokenHash – SHA-256 of the current refresh token; nil after logout.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	FullName         string    `json:"fullName"`
	UserType         UserType  `json:"userType"`
	MobileNo         string    `json:"mobileNo"`
	Specialization   *string   `json:"specialization,omitempty"`
	ProfileImage     *string   `json:"profileImage,omitempty"`
	RefreshTokenHash *string   `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserRef is the slice of a User that gets populated into other documents
// (message authors, blog authors, booking parties).
type UserRef struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	FullName     string  `json:"fullName,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

// Ref returns the public projection of u.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, FullName: u.FullName, ProfileImage: u.ProfileImage}
}
