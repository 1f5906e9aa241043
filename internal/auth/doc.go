// Package auth guards the state-changing ubd endpoints, which sign with the
// daemon account, behind static bearer tokens.
package auth
