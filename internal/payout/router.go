// Package payout selects a settlement route for a completed transaction and
// calls the matching settlement rail.
package payout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chungtau/mti-gateway/internal/model"
)

var (
	BankFeeRate   = decimal.RequireFromString("0.03")
	CryptoFeeRate = decimal.RequireFromString("0.05")
)

// Result describes a payout handed to a rail.
type Result struct {
	Method    model.PayoutMethod
	Reference string
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
}

// BankTransfer is the request sent to a bank rail.
type BankTransfer struct {
	Amount            decimal.Decimal
	Currency          string
	AccountNumber     string
	RoutingNumber     string
	AccountHolderName string
	Reference         string
}

// CryptoTransfer is the request sent to a crypto rail.
type CryptoTransfer struct {
	Amount    decimal.Decimal
	Asset     string
	Address   string
	Reference string
}

// BankRail moves fiat to a bank account and returns the transfer id.
type BankRail interface {
	Transfer(ctx context.Context, req BankTransfer) (string, error)
}

// CryptoRail broadcasts an on-chain transfer and returns its hash.
type CryptoRail interface {
	Send(ctx context.Context, req CryptoTransfer) (string, error)
}

type Router struct {
	bank   BankRail
	crypto CryptoRail
}

func NewRouter(bank BankRail, crypto CryptoRail) *Router {
	return &Router{bank: bank, crypto: crypto}
}

// Route pays out tx using the merchant's default method. A missing destination
// or an unsupported method fails with model.ErrRouteUnavailable before any rail
// is called.
func (r *Router) Route(ctx context.Context, tx *model.Transaction, settings *model.MerchantPayoutSettings) (Result, error) {
	if settings == nil {
		return Result{}, fmt.Errorf("%w: no payout settings for merchant %s", model.ErrRouteUnavailable, tx.MerchantID)
	}

	switch settings.DefaultPayoutMethod {
	case model.PayoutBank:
		return r.routeBank(ctx, tx, settings.BankAccount)
	case model.PayoutCrypto:
		return r.routeCrypto(ctx, tx, settings.CryptoWallet)
	default:
		return Result{}, fmt.Errorf("%w: unsupported payout method %q", model.ErrRouteUnavailable, settings.DefaultPayoutMethod)
	}
}

func (r *Router) routeBank(ctx context.Context, tx *model.Transaction, account model.BankAccount) (Result, error) {
	if !account.Configured() {
		return Result{}, fmt.Errorf("%w: bank account not configured", model.ErrRouteUnavailable)
	}

	fee, net := split(tx.Amount, BankFeeRate)
	ref, err := r.bank.Transfer(ctx, BankTransfer{
		Amount:            net,
		Currency:          tx.Currency,
		AccountNumber:     account.AccountNumber,
		RoutingNumber:     account.RoutingNumber,
		AccountHolderName: account.AccountHolderName,
		Reference:         tx.TransactionID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("bank transfer: %w", err)
	}
	return Result{Method: model.PayoutBank, Reference: ref, Fee: fee, NetAmount: net}, nil
}

func (r *Router) routeCrypto(ctx context.Context, tx *model.Transaction, wallet model.CryptoWallet) (Result, error) {
	if wallet.BTCAddress == "" {
		return Result{}, fmt.Errorf("%w: no crypto wallet address configured", model.ErrRouteUnavailable)
	}

	fee, net := split(tx.Amount, CryptoFeeRate)
	ref, err := r.crypto.Send(ctx, CryptoTransfer{
		Amount:    net,
		Asset:     "BTC",
		Address:   wallet.BTCAddress,
		Reference: tx.TransactionID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("crypto transfer: %w", err)
	}
	return Result{Method: model.PayoutCrypto, Reference: ref, Fee: fee, NetAmount: net}, nil
}

func split(amount, rate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = amount.Mul(rate).Round(2)
	return fee, amount.Sub(fee)
}
