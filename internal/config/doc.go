// Package config loads the ubd/ub JSON configuration: listen address, chain
// endpoint, wallet location, alias cache, archive store/queue and logging.
// Chain metadata lives in a separate YAML file parsed by internal/web3.
package config
