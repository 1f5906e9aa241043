// Package cache provides author alias caches for bulletin.Reader: an
// in-process TTL map and a Redis backed cache shared between ubd replicas.
package cache
