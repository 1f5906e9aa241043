package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `ub - Unstoppable Bulletin command line client

Usage: ub <command> [flags] [args]

Commands:
  status                     show platform and account status
  post <index>               show one post
  posts [-from N] [-to N]    list posts in [from, to), newest total by default
  alias <address>            show an author alias
  price                      show the subscription price per period
  verify <address>           check whether an address holds a subscription
  wallet new [-out path]     create and encrypt a new account
  wallet import <hex>        import a private key into the keystore
  wallet address             print the configured account address
  feedback <message>         send feedback to the platform
  subscribe <periods> [-wait] pay for subscription periods
  type <bits>                describe a post type value

Configuration is read from $UB_CONFIG (default configs/ubd.json).
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Print(usage)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err := cmd(ctx, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
