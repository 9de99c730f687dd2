package controller

import (
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/shopspring/decimal"
)

// TxStatus is the lifecycle stage of a collaborator-backed transaction.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

// TxEvent is published to the device's event stream.
type TxEvent struct {
	Status     TxStatus           `json:"status"`
	Kind       domain.PaymentType `json:"kind"`
	TxHash     string             `json:"txHash,omitempty"`
	Amount     decimal.Decimal    `json:"amount"`
	PlatformID string             `json:"platformId,omitempty"`
	Message    string             `json:"message,omitempty"`
	At         time.Time          `json:"at"`
}

// Notifier receives transaction status events.
type Notifier interface {
	Notify(ev TxEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(TxEvent)

func (f NotifierFunc) Notify(ev TxEvent) { f(ev) }

type discardNotifier struct{}

func (discardNotifier) Notify(TxEvent) {}
