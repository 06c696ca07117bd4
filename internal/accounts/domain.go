package accounts

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the staff role of an administrative account.
type Role string

// Known roles. SuperAdmin overrides every permission check.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAnalyst    Role = "analyst"
)

// Roles lists the roles in descending order of authority.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleAnalyst}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Label renders the role for display, e.g. "Super Admin".
func (r Role) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(r), "_", " "))
}

// SubscriptionStatus is a customer's plan tier.
type SubscriptionStatus string

// Subscription tiers.
const (
	SubscriptionFree       SubscriptionStatus = "free"
	SubscriptionBasic      SubscriptionStatus = "basic"
	SubscriptionPremium    SubscriptionStatus = "premium"
	SubscriptionEnterprise SubscriptionStatus = "enterprise"
)

// AdminAccount is a staff-side account with role and explicit permission grants.
type AdminAccount struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Permissions map[string]bool `json:"permissions"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	IsActive    bool            `json:"is_active"`
	LastLogin   *time.Time      `json:"last_login,omitempty"`
}

// DisplayName prefers the full name and falls back to the email.
func (a *AdminAccount) DisplayName() string {
	return displayName(a.FirstName, a.LastName, a.Email)
}

// CustomerAccount is the account record for a non-staff principal.
type CustomerAccount struct {
	ID                 string             `json:"id"`
	AuthUserID         string             `json:"auth_user_id"`
	Email              string             `json:"email"`
	FirstName          string             `json:"first_name,omitempty"`
	LastName           string             `json:"last_name,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	AvatarURL          string             `json:"avatar_url,omitempty"`
	IsActive           bool               `json:"is_active"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
}

// DisplayName prefers the full name and falls back to the email.
func (c *CustomerAccount) DisplayName() string {
	return displayName(c.FirstName, c.LastName, c.Email)
}

func displayName(first, last, email string) string {
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	return email
}
