// Package storage defines the persistence surface for the inspection service.
//
// # Overview
//
// This package holds the domain model records (users, sessions, inspections,
// notifications, assets, locations, form templates) and the Store interface
// the rest of the application depends on. The concrete implementation lives
// in pkg/storage/postgres (PostgreSQL for rows, S3 for images, Redis for the
// session cache).
//
// # Architecture
//
// The Store interface composes focused sub-interfaces:
//
//   - UserStore: users, credentials, permission overrides
//   - SessionStore: login sessions keyed by token hash
//   - InspectionStore: inspection records, status transitions, export bookkeeping
//   - NotificationStore: notifications, preferences, subscriptions, dispatch log
//   - AssetStore / LocationStore / TemplateStore: admin-managed reference data
//
// Services and handlers depend only on the sub-interfaces they use, which
// keeps tests down to small hand-written fakes.
//
// # Status Transitions
//
// The transition methods (SubmitInspection, ReviewInspection) carry the
// expected current status inside the UPDATE's WHERE clause. When two writers
// race, the second one affects zero rows and gets an invalid-state error
// instead of silently overwriting the first.
//
// # Error Conventions
//
// Implementations return pkg/apperr errors for the cases handlers care
// about: not-found (404), conflict on unique keys (409), invalid state on a
// lost transition race (409). Anything else is wrapped and surfaces as an
// internal error.
//
// # Configuration
//
//	config := storage.DefaultConfig()
//	config.PostgresURL = "postgres://localhost/fieldsafe"
//	config.S3Bucket = "inspection-images"
//	config.RedisURL = "redis://localhost:6379"
//
// # Related Packages
//
//   - pkg/storage/postgres: the concrete implementation
//   - pkg/inspections: owns the status enum and workflow rules
//   - pkg/rbac: owns roles and capabilities
package storage
