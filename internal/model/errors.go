package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrRouteUnavailable    = errors.New("payout route unavailable")
	ErrCaptureFailed       = errors.New("financial capture failed")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// ValidationError lists the malformed fields of a submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid transaction request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) asError() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PersistenceError wraps a store failure that aborted a stage.
type PersistenceError struct {
	Op            string
	TransactionID string
	Err           error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for transaction %s: %v", e.Op, e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError wraps a publish failure that aborted a stage.
type DeliveryError struct {
	MTI           string
	TransactionID string
	Err           error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s for transaction %s: %v", e.MTI, e.TransactionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
