// Package session owns the dashboard credential lifecycle.
//
// A Manager is the single writer of the credential pair. It performs the login
// and refresh exchanges, decodes the access token's claims, keeps exactly one
// renewal timer armed (exp - RenewBefore), and persists the pair through a
// tokenstore.Store. Every failure on the refresh path ends in a logout.
//
// Dependents (the request gateway, the realtime channel) observe the session
// through Subscribe and never write credentials themselves.
package session
