package orders

import (
	"strings"

	"github.com/google/uuid"
)

const (
	paymentReferencePrefix = "bzr_"
	refundReferencePrefix  = "bzr_rf_"
)

// NewPaymentReference returns a unique gateway reference for a payment attempt.
func NewPaymentReference() string {
	return paymentReferencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRefundReference returns a reference for a pending refund row.
func NewRefundReference() string {
	return refundReferencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
