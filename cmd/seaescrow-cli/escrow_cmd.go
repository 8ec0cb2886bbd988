package main

import (
	"fmt"
	"io"
	"strings"

	"seaescrow/core/types"
	"seaescrow/crypto"
)

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
	switch args[0] {
	case "init":
		return runEscrowInit(args[1:], stdout, stderr)
	case "deposit":
		return runEscrowDeposit(args[1:], stdout, stderr)
	case "release":
		return runEscrowRelease(args[1:], stdout, stderr)
	case "dispute":
		return runEscrowDispute(args[1:], stdout, stderr)
	case "refund":
		return runEscrowRefund(args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "derive":
		return runEscrowDerive(args[1:], stdout, stderr)
	case "receipts":
		return runEscrowReceipts(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func escrowUsage() string {
	return strings.TrimSpace(`Usage:
  seaescrow-cli escrow <command> [flags]

Commands:
  init      Open an order as the seller
  deposit   Fund an order as the buyer
  release   Pay the seller (buyer only)
  dispute   Hand an arbitrated order to its referee (buyer only)
  refund    Return a disputed order's funds to the buyer (referee only)
  get       Show an order
  derive    Compute the order and vault addresses for a seller and order id
  receipts  List executed instructions for an order`)
}

// orderView is the subset of an order the CLI needs to fill defaults.
type orderView struct {
	Seller              crypto.Address `json:"seller"`
	SellerPayoutAccount crypto.Address `json:"sellerPayoutAccount"`
	BuyerRefundAccount  crypto.Address `json:"buyerRefundAccount"`
	AssetType           crypto.Address `json:"assetType"`
	Vault               crypto.Address `json:"vault"`
	State               string         `json:"state"`
}

func fetchOrder(addr crypto.Address) (*orderView, error) {
	var order orderView
	if err := query("escrow_getOrder", map[string]string{"address": addr.String()}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func runEscrowInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow init", stderr)
	keyFile := fs.String("key", "", "seller key file")
	payout := fs.String("payout", "", "seller payout token account (defaults to the seller's account for --mint)")
	mint := fs.String("mint", "", "asset mint")
	orderID := fs.Uint("id", 0, "order id, unique per seller (0-65535)")
	amount := fs.Uint64("amount", 0, "amount the buyer must deposit")
	referee := fs.String("referee", "", "optional referee address; enables dispute and refund")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	mintAddr, err := parseAddressFlag("mint", *mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *orderID > 0xFFFF {
		return printError(stderr, "--id must fit in 16 bits")
	}
	if *amount == 0 {
		return printError(stderr, "--amount must be positive")
	}
	payload := types.InitOrderPayload{AssetType: mintAddr, OrderID: uint16(*orderID), Amount: *amount}
	if *referee != "" {
		addr, err := parseAddressFlag("referee", *referee)
		if err != nil {
			return printError(stderr, err.Error())
		}
		payload.Referee = &addr
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	payload.SellerPayoutAccount, err = resolveAccount(*payout, key.PubKey().Address(), *mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindInitOrder, payload, stdout, stderr)
}

func runEscrowDeposit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow deposit", stderr)
	keyFile := fs.String("key", "", "buyer key file")
	order := fs.String("order", "", "order address")
	funding := fs.String("funding", "", "buyer token account (defaults to the buyer's account for the order's mint)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	record, err := fetchOrder(orderAddr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	source, err := resolveAccount(*funding, key.PubKey().Address(), record.AssetType.String())
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindDeposit, types.DepositPayload{Order: orderAddr, FundingAccount: source, Vault: record.Vault}, stdout, stderr)
}

func runEscrowRelease(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow release", stderr)
	keyFile := fs.String("key", "", "buyer key file")
	order := fs.String("order", "", "order address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	record, err := fetchOrder(orderAddr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindRelease, types.ReleasePayload{
		Order:         orderAddr,
		Vault:         record.Vault,
		PayoutAccount: record.SellerPayoutAccount,
	}, stdout, stderr)
}

func runEscrowDispute(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow dispute", stderr)
	keyFile := fs.String("key", "", "buyer key file")
	order := fs.String("order", "", "order address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindDispute, types.DisputePayload{Order: orderAddr}, stdout, stderr)
}

func runEscrowRefund(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow refund", stderr)
	keyFile := fs.String("key", "", "referee key file")
	order := fs.String("order", "", "order address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	record, err := fetchOrder(orderAddr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.KindRefund, types.RefundPayload{
		Order:         orderAddr,
		Vault:         record.Vault,
		RefundAccount: record.BuyerRefundAccount,
	}, stdout, stderr)
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow get", stderr)
	order := fs.String("order", "", "order address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printQuery("escrow_getOrder", map[string]string{"address": orderAddr.String()}, stdout, stderr)
}

func runEscrowDerive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow derive", stderr)
	seller := fs.String("seller", "", "seller address")
	orderID := fs.Uint("id", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	sellerAddr, err := parseAddressFlag("seller", *seller)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *orderID > 0xFFFF {
		return printError(stderr, "--id must fit in 16 bits")
	}
	return printQuery("escrow_deriveOrder", map[string]interface{}{"seller": sellerAddr.String(), "orderId": *orderID}, stdout, stderr)
}

func runEscrowReceipts(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow receipts", stderr)
	order := fs.String("order", "", "order address")
	limit := fs.Int("limit", 0, "maximum receipts to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	orderAddr, err := parseAddressFlag("order", *order)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printQuery("escrow_listReceipts", map[string]interface{}{"order": orderAddr.String(), "limit": *limit}, stdout, stderr)
}

func printQuery(method string, params interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintln(stderr, rpcErr.Error())
		return 1
	}
	writeRPCResult(stdout, result)
	return 0
}
