package rbac

import (
	"github.com/fieldsafe/fieldsafe/pkg/apperr"
)

// Role is one of the four account roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInspector  Role = "inspector"
	RoleSupervisor Role = "supervisor"
	RoleEmployee   Role = "employee"
)

// KnownRoles lists every valid role.
func KnownRoles() []Role {
	return []Role{RoleAdmin, RoleInspector, RoleSupervisor, RoleEmployee}
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleInspector, RoleSupervisor, RoleEmployee:
		return Role(s), nil
	default:
		return "", apperr.Validation("unknown role %q", s)
	}
}

// Capability is a named boolean permission flag.
type Capability string

const (
	CapManageUsers            Capability = "manage_users"
	CapManageForms            Capability = "manage_forms"
	CapCreateInspections      Capability = "create_inspections"
	CapViewInspections        Capability = "view_inspections"
	CapReviewInspections      Capability = "review_inspections"
	CapApproveInspections     Capability = "approve_inspections"
	CapRejectInspections      Capability = "reject_inspections"
	CapViewPendingInspections Capability = "view_pending_inspections"
	CapViewAnalytics          Capability = "view_analytics"
)

// AllCapabilities lists every capability in a stable order.
func AllCapabilities() []Capability {
	return []Capability{
		CapManageUsers,
		CapManageForms,
		CapCreateInspections,
		CapViewInspections,
		CapReviewInspections,
		CapApproveInspections,
		CapRejectInspections,
		CapViewPendingInspections,
		CapViewAnalytics,
	}
}

// ParseCapability validates a capability string.
func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities() {
		if Capability(s) == c {
			return c, nil
		}
	}
	return "", apperr.Validation("unknown capability %q", s)
}

// PermissionSet holds the nine capability flags. The zero value denies
// everything.
type PermissionSet struct {
	ManageUsers            bool `json:"manage_users"`
	ManageForms            bool `json:"manage_forms"`
	CreateInspections      bool `json:"create_inspections"`
	ViewInspections        bool `json:"view_inspections"`
	ReviewInspections      bool `json:"review_inspections"`
	ApproveInspections     bool `json:"approve_inspections"`
	RejectInspections      bool `json:"reject_inspections"`
	ViewPendingInspections bool `json:"view_pending_inspections"`
	ViewAnalytics          bool `json:"view_analytics"`
}

// Has reports whether the capability is granted. Unknown capabilities are
// never granted.
func (ps PermissionSet) Has(c Capability) bool {
	switch c {
	case CapManageUsers:
		return ps.ManageUsers
	case CapManageForms:
		return ps.ManageForms
	case CapCreateInspections:
		return ps.CreateInspections
	case CapViewInspections:
		return ps.ViewInspections
	case CapReviewInspections:
		return ps.ReviewInspections
	case CapApproveInspections:
		return ps.ApproveInspections
	case CapRejectInspections:
		return ps.RejectInspections
	case CapViewPendingInspections:
		return ps.ViewPendingInspections
	case CapViewAnalytics:
		return ps.ViewAnalytics
	default:
		return false
	}
}

// With returns a copy with one capability flipped. Used for override
// merging.
func (ps PermissionSet) With(c Capability, allowed bool) PermissionSet {
	switch c {
	case CapManageUsers:
		ps.ManageUsers = allowed
	case CapManageForms:
		ps.ManageForms = allowed
	case CapCreateInspections:
		ps.CreateInspections = allowed
	case CapViewInspections:
		ps.ViewInspections = allowed
	case CapReviewInspections:
		ps.ReviewInspections = allowed
	case CapApproveInspections:
		ps.ApproveInspections = allowed
	case CapRejectInspections:
		ps.RejectInspections = allowed
	case CapViewPendingInspections:
		ps.ViewPendingInspections = allowed
	case CapViewAnalytics:
		ps.ViewAnalytics = allowed
	}
	return ps
}

// RolePermissions returns the fixed capability set for a role. Every
// capability is enumerated explicitly per role; an unknown role gets the
// zero set and is therefore denied everything.
func RolePermissions(role Role) PermissionSet {
	switch role {
	case RoleAdmin:
		return PermissionSet{
			ManageUsers:            true,
			ManageForms:            true,
			CreateInspections:      true,
			ViewInspections:        true,
			ReviewInspections:      true,
			ApproveInspections:     true,
			RejectInspections:      true,
			ViewPendingInspections: true,
			ViewAnalytics:          true,
		}
	case RoleSupervisor:
		return PermissionSet{
			ManageUsers:            false,
			ManageForms:            false,
			CreateInspections:      true,
			ViewInspections:        true,
			ReviewInspections:      true,
			ApproveInspections:     true,
			RejectInspections:      true,
			ViewPendingInspections: true,
			ViewAnalytics:          true,
		}
	case RoleInspector:
		return PermissionSet{
			ManageUsers:            false,
			ManageForms:            false,
			CreateInspections:      true,
			ViewInspections:        true,
			ReviewInspections:      false,
			ApproveInspections:     false,
			RejectInspections:      false,
			ViewPendingInspections: false,
			ViewAnalytics:          false,
		}
	case RoleEmployee:
		return PermissionSet{
			ManageUsers:            false,
			ManageForms:            false,
			CreateInspections:      true,
			ViewInspections:        true,
			ReviewInspections:      false,
			ApproveInspections:     false,
			RejectInspections:      false,
			ViewPendingInspections: false,
			ViewAnalytics:          false,
		}
	default:
		return PermissionSet{}
	}
}
