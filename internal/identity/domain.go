package identity

import "time"

// Principal is the resolved identity of the caller, independent of any role.
type Principal struct {
	ID    string
	Email string
}

// Credentials is the opaque material a browser carries between requests.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no credential material is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Profile holds optional fields captured at sign-up.
type Profile struct {
	FirstName string
	LastName  string
	Phone     string
}

// User is a stored identity with its password hash.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Profile      Profile
	CreatedAt    time.Time
}

// Principal returns the principal view of the user.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email}
}
