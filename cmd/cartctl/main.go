// cartctl drives a device-side cart from the command line. Each invocation
// restores the cart from the state file, applies one command, waits for the
// store and remote calls it triggered, and prints the cart. Remote failures
// are reported on stderr without failing the command.
//
// Commands:
//
//	cartctl show
//	cartctl add -product ID [-size S] [-color C] -price CENTS [-sale CENTS] -stock N [-qty N]
//	cartctl update -line ID -qty N
//	cartctl remove -line ID
//	cartctl clear
//	cartctl login -user ID (-token JWT | -secret KEY)
//	cartctl logout
//	cartctl refresh
//
// Configuration comes from CARTSYNC_* environment variables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "cartctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return fmt.Errorf("missing command")
	}

	name, rest := args[0], args[1:]
	if name == "-h" || name == "-help" || name == "--help" || name == "help" {
		printUsage(stdout)
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	cmdErr := cmd(ctx, s, rest)
	if err := s.manager.Flush(ctx); err != nil {
		fmt.Fprintf(stderr, "cartctl: account cart not updated: %v\n", err)
	}
	if cmdErr != nil {
		return cmdErr
	}

	return printCart(stdout, s.manager, cfg.JSON)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `cartctl - device cart with login sync

Usage:
  cartctl <command> [options]

Commands:
  show      Print the cart
  add       Add a product variant
  update    Set the quantity of a line (below 1 removes it)
  remove    Remove a line
  clear     Empty the cart
  login     Sign in and merge the cart with the account cart
  logout    Sign out, keeping the cart on this device
  refresh   Replace the cart with the account cart

Environment:
  CARTSYNC_STATE_FILE       cart file (default .cartsync/cart.json)
  CARTSYNC_REMOTE_URL       cart service base URL (default http://localhost:8003)
  CARTSYNC_REMOTE_TIMEOUT   per-request timeout (default 10s)
  CARTSYNC_LOG_LEVEL        debug, info, warn or error (default warn)
  CARTSYNC_JSON             print the cart as JSON
  CARTSYNC_REDIS_ADDR       keep the cart in Redis instead of the state file
  CARTSYNC_DEVICE_ID        Redis key suffix for this device (default default)
  CARTSYNC_REDIS_TTL        Redis snapshot lifetime (default 720h)

Run 'cartctl <command> -h' for command options.
`)
}
