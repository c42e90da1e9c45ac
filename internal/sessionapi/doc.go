// Package sessionapi is the client for the backend's session endpoints.
//
// The three calls never surface transport errors as Go errors for the
// decisions callers make: VerifySession collapses every failure into
// "not valid" and ExchangeSession returns a typed failure reason. Logout
// returns an error only so callers can log it; it is never authoritative.
//
// Credentials travel as cookies. A Client is bound to one cookie jar, the
// jar of the browser it acts for (see WithJar).
package sessionapi
