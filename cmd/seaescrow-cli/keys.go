package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"seaescrow/cmd/internal/passphrase"
	"seaescrow/core/types"
	"seaescrow/crypto"
)

var keystoreStrength = crypto.KeystoreStandard

func newPassSource(label string, confirm bool) *passphrase.Source {
	src := passphrase.NewSource(keyPassEnv, label)
	if confirm {
		src = src.WithConfirmation()
	}
	return src
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "path of the key file to create")
	force := fs.Bool("force", false, "overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *out == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return printError(stderr, fmt.Sprintf("%s already exists; pass --force to replace it", *out))
	}
	pass, err := newPassSource("new key", true).Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass, keystoreStrength); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyFile := fs.String("key", "", "key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("--key is required")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file %s not found; run seaescrow-cli keygen first", path)
		}
		return nil, err
	}
	pass, err := newPassSource("key", false).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return key, nil
}

type programInfo struct {
	ProgramID      crypto.Address `json:"programId"`
	TokenProgramID crypto.Address `json:"tokenProgramId"`
}

// submit signs payload with the next nonce of key and sends it.
func submit(key *crypto.PrivateKey, kind types.InstructionKind, payload interface{}, stdout, stderr io.Writer) int {
	var info programInfo
	if err := query("escrow_programInfo", nil, &info); err != nil {
		return printError(stderr, fmt.Sprintf("fetch program info: %v", err))
	}
	var nonce uint64
	if err := query("account_getNonce", map[string]string{"address": key.PubKey().Address().String()}, &nonce); err != nil {
		return printError(stderr, fmt.Sprintf("fetch nonce: %v", err))
	}
	ix, err := types.NewInstruction(kind, nonce+1, payload)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := ix.Sign(info.ProgramID, key); err != nil {
		return printError(stderr, err.Error())
	}
	result, rpcErr, err := rpcCall("escrow_submit", ix, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if rpcErr != nil {
		fmt.Fprintln(stderr, rpcErr.Error())
		return 1
	}
	writeRPCResult(stdout, result)
	return 0
}

func parseAddressFlag(name, value string) (crypto.Address, error) {
	if value == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("--%s: %v", name, err)
	}
	return addr, nil
}
