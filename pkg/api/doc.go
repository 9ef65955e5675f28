// Package api assembles the HTTP surface: the router, the middleware
// chain, and the admin CRUD handlers for users, assets, locations and
// form templates.
//
// Route groups and their gates:
//
//	public  /auth/login /auth/logout /auth/sso/* /healthz
//	authed  /auth/me /auth/pin /auth/signature* /notifications/*
//	        /inspections/* (create_inspections or view_inspections)
//	        /inspections/pending, review, complete (review capabilities)
//	admin   /admin/* (admin role)
//
// Everything below /admin requires the admin role; capability gates on
// the inspection groups are resolved through the rbac checker so
// per-user overrides apply.
package api
