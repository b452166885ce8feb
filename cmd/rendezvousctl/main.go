// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// This file contains a command line client to interact with a rendezvous server
// on behalf of a local account.

package main

import (
	"crypto/ed25519"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/rest"
	"golang.org/x/net/proxy"
)

var (
	endpointFlag  = flag.String("endpoint", "http://localhost:4444", "Rendezvous server API endpoint")
	keyFlag       = flag.String("key", "rendezvous.key", "Account key file (created if missing)")
	proxyFlag     = flag.String("proxy", "", "SOCKS5 proxy to route requests through (e.g. Tor at 127.0.0.1:9050)")
	verbosityFlag = flag.Int("verbosity", int(log.LvlWarn), "Log level to run with")
)

// errUsage is returned if the command line arguments are malformed.
var errUsage = errors.New("usage: rendezvousctl [flags] address | submit <target> <commitment> | pending | connections")

func main() {
	flag.Parse()

	// Enable colored terminal logging
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(*verbosityFlag), log.StreamHandler(os.Stderr, log.TerminalFormat(true))))

	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes a single client command.
func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	key, err := loadKey(*keyFlag)
	if err != nil {
		return err
	}
	api, err := newAPI(*endpointFlag, *proxyFlag, key)
	if err != nil {
		return err
	}
	switch args[0] {
	case "address":
		fmt.Println(api.Address())

	case "submit":
		if len(args) != 3 {
			return errUsage
		}
		target, err := account.HexToAddress(args[1])
		if err != nil {
			return err
		}
		commitment, err := hexutil.Decode(args[2])
		if err != nil {
			return fmt.Errorf("invalid commitment: %v", err)
		}
		matched, err := api.SubmitHandshake(target, commitment)
		if err != nil {
			return err
		}
		if matched {
			fmt.Println("matched, connected with", target)
		} else {
			fmt.Println("pending, waiting for", target)
		}

	case "pending":
		pend, err := api.Pending()
		if err != nil {
			return err
		}
		fmt.Printf("target: %v\ncommitment: %v\nsubmitted: %d\n", pend.Target, pend.Commitment, pend.SubmittedAt)

	case "connections":
		conns, err := api.Connections()
		if err != nil {
			return err
		}
		for _, conn := range conns {
			fmt.Println(conn)
		}

	default:
		return errUsage
	}
	return nil
}

// newAPI creates a signing API client, routed through a SOCKS5 proxy if set.
func newAPI(endpoint string, socks string, key account.SecretKey) (*rest.API, error) {
	if socks == "" {
		return rest.NewAPI(endpoint, key), nil
	}
	dialer, err := proxy.SOCKS5("tcp", socks, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	log.Debug("Routing requests through proxy", "proxy", socks)
	return rest.NewAPIWithDialer(endpoint, key, dialer), nil
}

// loadKey reads the hex encoded account key from a file, generating and storing
// a fresh one if it doesn't exist yet.
func loadKey(path string) (account.SecretKey, error) {
	blob, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, err := hexutil.Decode(strings.TrimSpace(string(blob)))
		if err != nil {
			return nil, fmt.Errorf("invalid key file %s: %v", path, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid key file %s: %d bytes", path, len(seed))
		}
		return account.SecretKey(seed), nil
	case !os.IsNotExist(err):
		return nil, err
	}
	key, err := account.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(key)), 0600); err != nil {
		return nil, err
	}
	log.Info("Generated new account", "address", key.Address())
	return key, nil
}
