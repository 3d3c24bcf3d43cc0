package model

import "time"

// Message type indicators carried by NotificationEvent.MTI.
const (
	MTIAuthorizationRequest  = "0100"
	MTIAuthorizationResponse = "0110"
	MTIFinancialRequest      = "0200"
	MTIFinancialResponse     = "0210"
	MTIPayout                = "PAYOUT"
)

// NotificationEvent is the payload delivered to merchant subscribers for every
// stage transition. Consumers must treat unknown MTI values as informational.
type NotificationEvent struct {
	MerchantID    string       `json:"merchantId"`
	MTI           string       `json:"mti"`
	TransactionID string       `json:"transactionId"`
	Status        Status       `json:"status"`
	Message       string       `json:"message"`
	ApprovalCode  string       `json:"approvalCode,omitempty"`
	ResponseCode  string       `json:"responseCode,omitempty"`
	PayoutMethod  PayoutMethod `json:"payoutMethod,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}
