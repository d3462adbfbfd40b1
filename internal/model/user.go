package model

// User is owned by the external auth collaborator; this service only reads
// id, role and active flag to validate reassignment targets.
type User struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"` // researcher / manager / admin
	Active bool   `json:"active"`
}
