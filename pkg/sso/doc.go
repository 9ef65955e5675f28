// Package sso implements Microsoft identity single sign-on over the
// OIDC authorization-code flow.
//
// The login handler redirects the browser to the identity provider with
// a random state bound to a short-lived cookie. The callback verifies
// the state, exchanges the code for an ID token, and resolves the token
// subject to a local user. Subjects seen for the first time are matched
// by verified email, or provisioned as an employee account when no user
// exists yet. The callback then mints a regular session, so downstream
// auth does not care how the user signed in.
package sso
