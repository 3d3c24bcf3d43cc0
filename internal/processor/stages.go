package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/validation"
)

const (
	responseApproved = "00"
	responseDeclined = "05"
)

// authorize makes the single 0110 decision from the transient card number and
// the stored auth code.
func (p *Processor) authorize(ctx context.Context, tx *model.Transaction, pan string) error {
	if err := sleep(ctx, p.authLatency); err != nil {
		return err
	}

	approved := validation.ValidateCardNumber(pan) && validation.ValidateAuthCode(tx.AuthCode, tx.ProtocolID)
	status := model.StatusDeclined
	code, response := "", responseDeclined
	if approved {
		status = model.StatusApproved
		code, response = p.approvalCode(), responseApproved
	}

	err := p.commit(ctx, tx, status, "authorization response", func(t *model.Transaction) {
		t.ApprovalCode = code
		t.ResponseCode = response
	})
	if err != nil {
		return err
	}
	if err := p.emit(ctx, tx, model.MTIAuthorizationResponse, "Authorization "+string(tx.Status)); err != nil {
		return err
	}

	p.logger.Info().
		Str("transaction_id", tx.TransactionID).
		Str("status", string(tx.Status)).
		Str("response_code", tx.ResponseCode).
		Msg("authorization decided")
	return nil
}

// settle runs the 0200/0210 capture. A failed capture voids the approval.
func (p *Processor) settle(ctx context.Context, tx *model.Transaction) error {
	if tx.Status != model.StatusApproved {
		return fmt.Errorf("%w: settle from %s", model.ErrInvalidTransition, tx.Status)
	}

	if err := p.commit(ctx, tx, model.StatusProcessing, "financial request", nil); err != nil {
		return err
	}
	if err := p.emit(ctx, tx, model.MTIFinancialRequest, "Financial transaction processing"); err != nil {
		return err
	}

	if err := sleep(ctx, p.captureLatency); err != nil {
		return err
	}

	status := model.StatusCompleted
	if p.float64() >= p.successRate {
		status = model.StatusFailed
	}
	err := p.commit(ctx, tx, status, "financial response", func(t *model.Transaction) {
		if status == model.StatusFailed {
			t.ApprovalCode = ""
		}
	})
	if err != nil {
		return err
	}
	if err := p.emit(ctx, tx, model.MTIFinancialResponse, "Financial transaction "+string(tx.Status)); err != nil {
		return err
	}

	if tx.Status == model.StatusFailed {
		p.logger.Warn().Err(model.ErrCaptureFailed).
			Str("transaction_id", tx.TransactionID).
			Msg("financial capture failed")
	}
	return nil
}

// initiatePayout routes the proceeds of a completed transaction. An unusable
// route ends in payout_failed, which is recorded but never published.
func (p *Processor) initiatePayout(ctx context.Context, tx *model.Transaction) error {
	if tx.Status != model.StatusCompleted {
		return fmt.Errorf("%w: payout from %s", model.ErrInvalidTransition, tx.Status)
	}

	settings, err := p.merchants.PayoutSettings(ctx, tx.MerchantID)
	switch {
	case errors.Is(err, model.ErrMerchantNotFound):
		return p.failPayout(ctx, tx, fmt.Errorf("%w: %w", model.ErrRouteUnavailable, err))
	case err != nil:
		return fmt.Errorf("load payout settings for merchant %s: %w", tx.MerchantID, err)
	}

	res, err := p.router.Route(ctx, tx, settings)
	if errors.Is(err, model.ErrRouteUnavailable) {
		return p.failPayout(ctx, tx, err)
	}
	if err != nil {
		return err
	}

	err = p.commit(ctx, tx, model.StatusPayoutInitiated, "payout", func(t *model.Transaction) {
		t.PayoutMethod = res.Method
		t.PayoutReference = res.Reference
		t.PayoutFee = res.Fee
		t.PayoutAmount = res.NetAmount
	})
	if err != nil {
		return err
	}
	if err := p.emit(ctx, tx, model.MTIPayout, "Payout initiated"); err != nil {
		return err
	}

	p.logger.Info().
		Str("transaction_id", tx.TransactionID).
		Str("payout_method", string(tx.PayoutMethod)).
		Str("net_amount", tx.PayoutAmount.StringFixed(2)).
		Msg("payout initiated")
	return nil
}

func (p *Processor) failPayout(ctx context.Context, tx *model.Transaction, cause error) error {
	if err := p.commit(ctx, tx, model.StatusPayoutFailed, "payout", nil); err != nil {
		return err
	}
	p.logger.Warn().Err(cause).
		Str("transaction_id", tx.TransactionID).
		Str("merchant_id", tx.MerchantID).
		Msg("payout route unavailable")
	return nil
}
