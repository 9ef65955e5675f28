// Package rbac implements role-based access control.
//
// Authorization is a two-layer model. The first layer is a fixed mapping
// from role to a set of nine boolean capabilities, fully enumerated per
// role in RolePermissions; an unknown role yields the all-false set, so
// authorization fails closed. The second layer is per-user overrides
// stored in the database and merged on top of the role set by the
// Checker, which keeps merged sets in a small LRU cache.
//
// Route protection is declarative:
//
//	r.Handle("/admin/users", mw.RequireRole(rbac.RoleAdmin)(h))
//	r.Handle("/inspections/{id}/review",
//		mw.RequirePermission([]rbac.Capability{rbac.CapReviewInspections}, false)(h))
//
// RequirePermission with requireAll=false passes when any listed
// capability is granted; with requireAll=true every capability must be
// granted. A 403 names the capability that was missing.
package rbac
