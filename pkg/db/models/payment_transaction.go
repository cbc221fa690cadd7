package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// PaymentTransaction records one payment or refund attempt for an order.
type PaymentTransaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Type          enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	AmountMinor   int64                   `gorm:"column:amount_minor;not null"`
	Reference     string                  `gorm:"column:reference;not null"`
	Channel       *string                 `gorm:"column:channel"`
	Status        enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null"`
	FailureReason *string                 `gorm:"column:failure_reason"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
