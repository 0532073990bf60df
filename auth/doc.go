// Package auth issues and checks the bearer tokens used by the REST API.
//
// Tokens are HS256 JWTs carrying the user id and username. Logging out puts
// a token on a Blacklist until it would have expired anyway. The blacklist
// lives in memory by default, or in Redis when several servers share users.
package auth
