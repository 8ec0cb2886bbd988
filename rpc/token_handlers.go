package rpc

import (
	"context"
	"net/http"

	"seaescrow/native/token"
)

type deriveTokenAccountParams struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

type deriveMintParams struct {
	Authority string `json:"authority"`
	Symbol    string `json:"symbol"`
}

type listTokenAccountsParams struct {
	Owner string `json:"owner"`
}

func (s *Server) handleGetTokenAccount(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, err := s.backend.TokenAccount(addr)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return account, nil
}

func (s *Server) handleListTokenAccounts(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params listTokenAccountsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddressParam("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addrs, err := s.backend.OwnerAccounts(owner)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	accounts := make([]*token.Account, 0, len(addrs))
	for _, addr := range addrs {
		account, err := s.backend.TokenAccount(addr)
		if err != nil {
			return nil, toRPCError(err, addr.String())
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (s *Server) handleGetMint(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mint, err := s.backend.Mint(addr)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return mint, nil
}

func (s *Server) handleDeriveTokenAccount(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params deriveTokenAccountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddressParam("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mint, rpcErr := parseAddressParam("mint", params.Mint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := s.backend.DeriveTokenAccount(owner, mint)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return addr, nil
}

func (s *Server) handleDeriveMint(_ context.Context, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params deriveMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	authority, rpcErr := parseAddressParam("authority", params.Authority)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := s.backend.DeriveMint(authority, params.Symbol)
	if err != nil {
		return nil, toRPCError(err, nil)
	}
	return addr, nil
}
