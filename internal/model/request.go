package model

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[\d\s]{13,19}$`)
	expiryPattern     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern        = regexp.MustCompile(`^\d{3,4}$`)
)

// SubmitRequest is the inbound shape accepted by the engine. Expiry and CVV are
// checked for shape only and are never stored.
type SubmitRequest struct {
	MerchantID     string
	CardHolderName string
	CardNumber     string
	Expiry         string
	CVV            string
	Amount         decimal.Decimal
	Currency       string
	ProtocolID     string
	AuthCode       string
	Online         bool
}

// Validate returns a *ValidationError describing every malformed field.
func (r SubmitRequest) Validate() error {
	var verr ValidationError
	if strings.TrimSpace(r.MerchantID) == "" {
		verr.add("merchantId", "merchant is required")
	}
	if strings.TrimSpace(r.CardHolderName) == "" {
		verr.add("cardHolderName", "card holder name is required")
	}
	if !cardNumberPattern.MatchString(r.CardNumber) {
		verr.add("cardNumber", "invalid card number")
	}
	if !expiryPattern.MatchString(r.Expiry) {
		verr.add("expiry", "format: MM/YY")
	}
	if !cvvPattern.MatchString(r.CVV) {
		verr.add("cvv", "invalid CVV")
	}
	switch {
	case !r.Amount.IsPositive():
		verr.add("amount", "amount must be greater than 0")
	case !r.Amount.Equal(r.Amount.Truncate(2)):
		verr.add("amount", "amount supports at most 2 decimal places")
	}
	if strings.TrimSpace(r.ProtocolID) == "" {
		verr.add("protocolId", "protocol is required")
	}
	if r.AuthCode == "" {
		verr.add("authCode", "authorization code is required")
	}
	return verr.asError()
}
