package dashboard

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/models"
)

// Role is who is using a dashboard session.
type Role int

const (
	RoleNone Role = iota
	RoleDonor
	RoleOperator
)

func (r Role) String() string {
	switch r {
	case RoleDonor:
		return "donor"
	case RoleOperator:
		return "operator"
	default:
		return "none"
	}
}

// ParseRole reads a role name as typed on the console.
func ParseRole(s string) (Role, error) {
	switch s {
	case "donor":
		return RoleDonor, nil
	case "operator", "volunteer":
		return RoleOperator, nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// Session is the state of one dashboard screen: the chosen role, whether the
// operator code was accepted, and the code currently being typed. The access
// code is a plain shared secret; there is no attempt counting or lockout.
type Session struct {
	accessCode string

	mu            sync.RWMutex
	role          Role
	authenticated bool
	pendingCode   string
}

// NewSession creates a session checking operators against accessCode. An
// empty accessCode rejects every operator.
func NewSession(accessCode string) *Session {
	return &Session{accessCode: accessCode}
}

// SelectRole picks the role for this session. It can be done once until Leave.
func (s *Session) SelectRole(role Role) error {
	if role != RoleDonor && role != RoleOperator {
		return fmt.Errorf("select role: invalid role %s", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleNone {
		return fmt.Errorf("select role %s, already %s: %w", role, s.role, models.ErrRoleAlreadySelected)
	}
	s.role = role
	return nil
}

// TypeCode records the code as currently entered.
func (s *Session) TypeCode(code string) {
	s.mu.Lock()
	s.pendingCode = code
	s.mu.Unlock()
}

// PendingCode returns the code as currently entered.
func (s *Session) PendingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCode
}

// Submit checks the entered code. The entry is cleared either way.
func (s *Session) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.pendingCode
	s.pendingCode = ""

	if s.role != RoleOperator {
		return fmt.Errorf("authenticate as %s: %w", s.role, models.ErrUnauthorized)
	}
	if s.accessCode == "" || subtle.ConstantTimeCompare([]byte(code), []byte(s.accessCode)) != 1 {
		return fmt.Errorf("authenticate: incorrect access code: %w", models.ErrUnauthorized)
	}
	s.authenticated = true
	return nil
}

// Authenticate enters code and submits it.
func (s *Session) Authenticate(code string) error {
	s.TypeCode(code)
	return s.Submit()
}

// Leave returns the session to role selection.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = RoleNone
	s.authenticated = false
	s.pendingCode = ""
}

// Role returns the selected role.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// IsOperator reports whether the session may change donation statuses.
func (s *Session) IsOperator() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role == RoleOperator && s.authenticated
}
