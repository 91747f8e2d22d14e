package domain

import "time"

// OrgRole determines which call surface an organization's members may use.
type OrgRole string

const (
	OrgRoleBuyer      OrgRole = "buyer"
	OrgRoleSeller     OrgRole = "seller"
	OrgRoleOperations OrgRole = "operations"
	OrgRoleAdmin      OrgRole = "admin"
)

// Elevated reports whether the role may use the operations surface.
func (r OrgRole) Elevated() bool {
	return r == OrgRoleOperations || r == OrgRoleAdmin
}

// Organization is a registered buyer, seller, or platform-staff org.
// Registration and approval happen outside this engine; rows are read-only
// here.
type Organization struct {
	ID        string
	Name      string
	Role      OrgRole
	CreatedAt time.Time
}

// Member is one person in an organization; the notification gateway fans out
// to all members of the addressed org.
type Member struct {
	ID        string
	OrgID     string
	Email     string
	Name      string
	CreatedAt time.Time
}

// APIToken is a credential for one member. The wire token is
// "<id>.<secret>"; only the bcrypt hash of the secret is stored.
type APIToken struct {
	ID         string
	OrgID      string
	MemberID   string
	SecretHash []byte
	CreatedAt  time.Time
}

// Actor is the authenticated caller resolved from an API token. Surfaces
// authorize against it before any machine guard runs.
type Actor struct {
	OrgID    string
	MemberID string
	Role     OrgRole
}
