// ABOUTME: User identity: a role tag plus display name, and the capabilities each role grants
// ABOUTME: Roles form a closed set; capability checks are plain set membership

package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Capability is a single permission a role may grant.
type Capability string

const (
	CapRead       Capability = "read"
	CapWrite      Capability = "write"
	CapUpload     Capability = "upload"
	CapCreateUser Capability = "create-user"
	CapDeleteUser Capability = "delete-user"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{CapRead, CapWrite, CapUpload, CapCreateUser, CapDeleteUser}

// CapabilitySet is an immutable set of capabilities.
type CapabilitySet struct {
	caps []Capability
}

// NewCapabilitySet builds a set from caps, ignoring duplicates.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var out []Capability
	for _, c := range caps {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return CapabilitySet{caps: out}
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return slices.Contains(s.caps, c)
}

// List returns the capabilities in AllCapabilities order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s.caps))
	for _, c := range AllCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s CapabilitySet) String() string {
	names := make([]string, 0, len(s.caps))
	for _, c := range s.List() {
		names = append(names, string(c))
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Role selects a user's capability level. The string value is the tag used in
// user keys, so it must not change.
type Role string

const (
	RoleSimple   Role = "Simple"
	RoleAdvanced Role = "Advanced"
	RoleSuper    Role = "Super"
)

// Roles lists every role from least to most privileged.
var Roles = []Role{RoleSimple, RoleAdvanced, RoleSuper}

var roleCapabilities = map[Role]CapabilitySet{
	RoleSimple:   NewCapabilitySet(CapRead),
	RoleAdvanced: NewCapabilitySet(CapRead, CapWrite, CapUpload),
	RoleSuper:    NewCapabilitySet(AllCapabilities...),
}

// ParseRole accepts a role tag case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q (want one of Simple, Advanced, Super)", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capabilities returns what r grants. Unknown roles grant nothing.
func (r Role) Capabilities() CapabilitySet {
	return roleCapabilities[r]
}

// Can reports whether r grants c.
func (r Role) Can(c Capability) bool {
	return r.Capabilities().Has(c)
}

// User identifies one participant by role and display name.
type User struct {
	Role Role
	Name string
}

func (u User) String() string {
	return string(u.Role) + ":" + u.Name
}

// Can reports whether u's role grants c.
func (u User) Can(c Capability) bool {
	return u.Role.Can(c)
}

// ParseUser parses "Role:name", the form used on the command line.
// The name must pass ValidateName.
func ParseUser(s string) (User, error) {
	roleTag, name, ok := strings.Cut(s, ":")
	if !ok {
		return User{}, fmt.Errorf("user %q must be Role:name", s)
	}
	role, err := ParseRole(roleTag)
	if err != nil {
		return User{}, err
	}
	if err := ValidateName(name); err != nil {
		return User{}, fmt.Errorf("user %q: %w", s, err)
	}
	return User{Role: role, Name: name}, nil
}

// ValidateName checks a display name. Names may not contain ':', the
// separator of every key built from them.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("name %q must not contain ':'", name)
	}
	return nil
}
