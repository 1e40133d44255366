package models

// User is the profile of the signed-in administrator as returned by the
// backend on login and by GET /profile.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
