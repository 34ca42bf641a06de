// Package gateway attaches the current bearer credential to backend calls.
//
// Transport is an http.RoundTripper: before dispatch it checks how long the
// access token has left and, below the threshold, blocks that one call on a
// session refresh. A 401 answer ends the session and is still returned to the
// caller. Client layers JSON helpers and the account endpoint on top.
package gateway
