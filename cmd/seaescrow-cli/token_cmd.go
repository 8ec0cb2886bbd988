package main

import (
	"fmt"
	"io"

	"seaescrow/core/types"
	"seaescrow/crypto"
)

func runMintCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "mint requires a subcommand: create, to")
	}
	switch args[0] {
	case "create":
		return runMintCreate(args[1:], stdout, stderr)
	case "to":
		return runMintTo(args[1:], stdout, stderr)
	default:
		return printError(stderr, fmt.Sprintf("unknown mint subcommand: %s", args[0]))
	}
}

func runMintCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint create", stderr)
	keyFile := fs.String("key", "", "mint authority key file")
	symbol := fs.String("symbol", "", "ticker, up to 10 alphanumeric characters")
	decimals := fs.Uint("decimals", 0, "display decimals")
	freeze := fs.String("freeze-authority", "", "optional address allowed to freeze accounts")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *symbol == "" {
		return printError(stderr, "--symbol is required")
	}
	if *decimals > 18 {
		return printError(stderr, "--decimals must be <= 18")
	}
	payload := types.CreateMintPayload{Symbol: *symbol, Decimals: uint8(*decimals)}
	if *freeze != "" {
		addr, err := parseAddressFlag("freeze-authority", *freeze)
		if err != nil {
			return printError(stderr, err.Error())
		}
		payload.FreezeAuthority = &addr
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindCreateMint, payload, stdout, stderr)
}

func runMintTo(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint to", stderr)
	keyFile := fs.String("key", "", "mint authority key file")
	mint := fs.String("mint", "", "mint address")
	to := fs.String("to", "", "destination token account")
	amount := fs.Uint64("amount", 0, "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	mintAddr, err := parseAddressFlag("mint", *mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	dest, err := parseAddressFlag("to", *to)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *amount == 0 {
		return printError(stderr, "--amount must be positive")
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindMintTo, types.MintToPayload{Mint: mintAddr, Destination: dest, Amount: *amount}, stdout, stderr)
}

func runAccountCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "account requires a subcommand: open, freeze, thaw")
	}
	switch args[0] {
	case "open":
		return runAccountOpen(args[1:], stdout, stderr)
	case "freeze":
		return runAccountFreeze(args[1:], types.KindFreeze, stdout, stderr)
	case "thaw":
		return runAccountFreeze(args[1:], types.KindThaw, stdout, stderr)
	default:
		return printError(stderr, fmt.Sprintf("unknown account subcommand: %s", args[0]))
	}
}

func runAccountOpen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("account open", stderr)
	keyFile := fs.String("key", "", "owner key file")
	mint := fs.String("mint", "", "mint address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	mintAddr, err := parseAddressFlag("mint", *mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindOpenAccount, types.OpenAccountPayload{Mint: mintAddr}, stdout, stderr)
}

func runAccountFreeze(args []string, kind types.InstructionKind, stdout, stderr io.Writer) int {
	fs := newFlagSet("account "+kind.String(), stderr)
	keyFile := fs.String("key", "", "freeze authority key file")
	account := fs.String("account", "", "token account")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := parseAddressFlag("account", *account)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, kind, types.FreezePayload{Account: addr}, stdout, stderr)
}

func runTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	keyFile := fs.String("key", "", "owner key file")
	from := fs.String("from", "", "source token account (defaults to the owner's account for --mint)")
	mint := fs.String("mint", "", "mint used to derive the source account")
	to := fs.String("to", "", "destination token account")
	amount := fs.Uint64("amount", 0, "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	dest, err := parseAddressFlag("to", *to)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *amount == 0 {
		return printError(stderr, "--amount must be positive")
	}
	if *from == "" && *mint == "" {
		return printError(stderr, "--from or --mint is required")
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	source, err := resolveAccount(*from, key.PubKey().Address(), *mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindTransfer, types.TransferPayload{From: source, To: dest, Amount: *amount}, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	account := fs.String("account", "", "token account")
	owner := fs.String("owner", "", "owner address, with --mint")
	mint := fs.String("mint", "", "mint address, with --owner")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var (
		addr crypto.Address
		err  error
	)
	if *account != "" {
		addr, err = parseAddressFlag("account", *account)
	} else {
		var ownerAddr crypto.Address
		ownerAddr, err = parseAddressFlag("owner", *owner)
		if err == nil {
			addr, err = resolveAccount("", ownerAddr, *mint)
		}
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printQuery("token_getAccount", map[string]string{"address": addr.String()}, stdout, stderr)
}

// resolveAccount returns explicit when set, otherwise owner's associated
// account for mint.
func resolveAccount(explicit string, owner crypto.Address, mint string) (crypto.Address, error) {
	if explicit != "" {
		return crypto.ParseAddress(explicit)
	}
	mintAddr, err := parseAddressFlag("mint", mint)
	if err != nil {
		return crypto.Address{}, err
	}
	var addr crypto.Address
	if err := query("token_deriveAccount", map[string]string{"owner": owner.String(), "mint": mintAddr.String()}, &addr); err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}
