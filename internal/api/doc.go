// Package api exposes the bulletin reader, the daemon account and the post
// archive over a chi based REST interface.
package api
