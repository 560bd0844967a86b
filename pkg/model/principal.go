package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated identity handed to the engine by the
// identity collaborator. The engine trusts it and performs no credential
// verification of its own.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanMutate reports whether the principal may mutate a reservation owned by
// ownerID: the owner always can, an admin may override.
func (p Principal) CanMutate(ownerID string) bool {
	return p.UserID == ownerID || p.IsAdmin()
}
