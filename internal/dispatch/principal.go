package dispatch

import (
	"fmt"

	"labreserve-client/internal/models"
)

// Principal is who the session belongs to. The set of implementations is
// closed: Anonymous, Student, Admin and Superuser.
type Principal interface {
	principal()
}

type Anonymous struct{}

type Student struct {
	Identity models.Identity
}

type Admin struct {
	Identity models.Identity
}

type Superuser struct {
	Identity models.Identity
}

func (Anonymous) principal() {}
func (Student) principal()   {}
func (Admin) principal()     {}
func (Superuser) principal() {}

// PrincipalFor maps a validated identity to its principal. A nil identity is
// Anonymous; an unknown role is an error.
func PrincipalFor(identity *models.Identity) (Principal, error) {
	if identity == nil {
		return Anonymous{}, nil
	}
	switch identity.Role {
	case models.RoleSuperuser:
		return Superuser{Identity: *identity}, nil
	case models.RoleAdmin:
		return Admin{Identity: *identity}, nil
	case models.RoleStudent:
		return Student{Identity: *identity}, nil
	}
	return Anonymous{}, fmt.Errorf("unknown role %q for user %d", identity.Role, identity.ID)
}

// IdentityOf returns the identity behind an authenticated principal.
func IdentityOf(p Principal) (models.Identity, bool) {
	switch v := p.(type) {
	case Superuser:
		return v.Identity, true
	case Admin:
		return v.Identity, true
	case Student:
		return v.Identity, true
	case Anonymous:
		return models.Identity{}, false
	}
	panic(fmt.Sprintf("dispatch: unhandled principal %T", p))
}

type State int

const (
	StateLoading State = iota
	StateAnonymous
	StateStudent
	StateAdmin
	StateSuperuser
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateStudent:
		return "student"
	case StateAdmin:
		return "admin"
	case StateSuperuser:
		return "superuser"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateLoading; candidate <= StateSuperuser; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("dispatch: unknown state %q", text)
}

// StateOf is the dispatcher state a principal settles in. Superuser is
// matched before Admin.
func StateOf(p Principal) State {
	switch p.(type) {
	case Superuser:
		return StateSuperuser
	case Admin:
		return StateAdmin
	case Student:
		return StateStudent
	case Anonymous:
		return StateAnonymous
	}
	panic(fmt.Sprintf("dispatch: unhandled principal %T", p))
}
