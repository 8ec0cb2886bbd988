package rpc

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/rpc/middleware"
)

const (
	defaultReceiptLimit = 50
	maxReceiptLimit     = 500
)

type addressParams struct {
	Address string `json:"address"`
}

type deriveOrderParams struct {
	Seller  string `json:"seller"`
	OrderID uint16 `json:"orderId"`
}

type listOrdersParams struct {
	Seller string `json:"seller"`
}

type listReceiptsParams struct {
	Order  string `json:"order,omitempty"`
	Signer string `json:"signer,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type receiptIDParams struct {
	ID string `json:"id"`
}

type programInfoResult struct {
	ProgramID      crypto.Address `json:"programId"`
	TokenProgramID crypto.Address `json:"tokenProgramId"`
}

type deriveOrderResult struct {
	Order crypto.Address `json:"order"`
	Bump  uint8          `json:"bump"`
	Vault crypto.Address `json:"vault"`
}

type receiptJSON struct {
	ID         string          `json:"id"`
	Hash       string          `json:"hash"`
	Kind       string          `json:"kind"`
	Signer     crypto.Address  `json:"signer"`
	Nonce      uint64          `json:"nonce"`
	Order      *crypto.Address `json:"order,omitempty"`
	Status     string          `json:"status"`
	ErrorClass string          `json:"errorClass,omitempty"`
	Error      string          `json:"error,omitempty"`
	Events     []*types.Event  `json:"events"`
	CreatedAt  string          `json:"createdAt"`
}

func formatReceipt(r *types.Receipt) receiptJSON {
	events := r.Events
	if events == nil {
		events = []*types.Event{}
	}
	return receiptJSON{
		ID:         r.ID,
		Hash:       r.Hash,
		Kind:       r.Kind.String(),
		Signer:     r.Signer,
		Nonce:      r.Nonce,
		Order:      r.Order,
		Status:     r.Status,
		ErrorClass: r.ErrorClass,
		Error:      r.Error,
		Events:     events,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Server) handleSubmit(ctx context.Context, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	authCtx, err := s.auth.Authorize(r, submitScope)
	if err != nil {
		return nil, &RPCError{Code: codeUnauthenticated, Message: "unauthenticated", Data: err.Error()}
	}
	if !s.limiter.Allow(submitLimitKey, r) {
		return nil, &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"}
	}
	var ix types.Instruction
	if rpcErr := decodeParams(req, &ix); rpcErr != nil {
		return nil, rpcErr
	}
	if !ix.Kind.Valid() {
		return nil, invalidParams("unknown instruction kind %d", ix.Kind)
	}
	receipt, err := s.backend.Execute(ctx, &ix)
	if err != nil {
		if receipt == nil {
			return nil, toRPCError(err, nil)
		}
		return nil, toRPCError(err, formatReceipt(receipt))
	}
	if subject := middleware.Subject(authCtx); subject != "" {
		s.logger.Info("instruction submitted",
			slog.String("subject", subject),
			slog.String("kind", receipt.Kind.String()),
			slog.String("signer", receipt.Signer.String()))
	}
	return formatReceipt(receipt), nil
}

// handleProgramInfo lets clients bind signatures to this deployment.
func (s *Server) handleProgramInfo(_ context.Context, _ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	return programInfoResult{ProgramID: s.backend.ProgramID(), TokenProgramID: s.backend.TokenProgramID()}, nil
}

func (s *Server) handleGetOrder(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	order, err := s.backend.Order(addr)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return order, nil
}

func (s *Server) handleDeriveOrder(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params deriveOrderParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddressParam("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	order, bump, vault, err := s.backend.DeriveOrder(seller, params.OrderID)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return deriveOrderResult{Order: order, Bump: bump, Vault: vault}, nil
}

func (s *Server) handleListOrders(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params listOrdersParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddressParam("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addrs, err := s.backend.SellerOrders(seller)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	orders := make([]*escrow.Order, 0, len(addrs))
	for _, addr := range addrs {
		order, err := s.backend.Order(addr)
		if err != nil {
			return nil, toRPCError(err, addr.String())
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Server) handleListReceipts(ctx context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.receipts == nil {
		return nil, &RPCError{Code: codeServerError, Message: "audit journal disabled"}
	}
	var params listReceiptsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if (params.Order == "") == (params.Signer == "") {
		return nil, invalidParams("exactly one of order or signer required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReceiptLimit
	}
	if limit > maxReceiptLimit {
		limit = maxReceiptLimit
	}
	var (
		receipts []*types.Receipt
		err      error
	)
	if params.Order != "" {
		order, rpcErr := parseAddressParam("order", params.Order)
		if rpcErr != nil {
			return nil, rpcErr
		}
		receipts, err = s.receipts.ListByOrder(ctx, order, limit)
	} else {
		signer, rpcErr := parseAddressParam("signer", params.Signer)
		if rpcErr != nil {
			return nil, rpcErr
		}
		receipts, err = s.receipts.ListBySigner(ctx, signer, limit)
	}
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "internal", Data: err.Error()}
	}
	out := make([]receiptJSON, 0, len(receipts))
	for _, receipt := range receipts {
		out = append(out, formatReceipt(receipt))
	}
	return out, nil
}

func (s *Server) handleGetReceipt(ctx context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.receipts == nil {
		return nil, &RPCError{Code: codeServerError, Message: "audit journal disabled"}
	}
	var params receiptIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.ID == "" {
		return nil, invalidParams("id required")
	}
	receipt, err := s.receipts.Get(ctx, params.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &RPCError{Code: codeNotFound, Message: "not_found", Data: params.ID}
	}
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "internal", Data: err.Error()}
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleGetNonce(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.backend.Nonce(addr)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return nonce, nil
}
