// Package archive mirrors bulletin posts into a local store. Sync requests
// become one job per post index; jobs travel through a queue (memory, Redis
// or RabbitMQ) to a pool of workers that fetch the post and persist it in a
// memory or MySQL store.
package archive
