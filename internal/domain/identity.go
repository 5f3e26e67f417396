package domain

// Identity is the (userId, displayName) pair handed to the core by the identity collaborator.
// The core only ever keeps copies of it; it never owns user accounts.
type Identity struct {
	UserID      UserID
	DisplayName string
}
