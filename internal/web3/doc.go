// Package web3 holds the chain-facing abstractions shared by the bulletin
// client: the Backend contract-call surface and the YAML chain definitions
// that name each network's RPC endpoint and bulletin contract address.
package web3
