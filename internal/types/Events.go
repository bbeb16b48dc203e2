package types

import (
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Event is anything a strategy publishes for observers.
type Event interface {
	EventName() string
}

// HarvestedEvent is published at the end of every successful harvest.
type HarvestedEvent struct {
	Strategy        common.Address `json:"strategy"`
	Profit          math.Int       `json:"profit"`
	Loss            math.Int       `json:"loss"`
	DebtPayment     math.Int       `json:"debt_payment"`
	DebtOutstanding math.Int       `json:"debt_outstanding"`
}

func (HarvestedEvent) EventName() string { return "Harvested" }

// ClonedEvent is published when the factory produces a new clone.
type ClonedEvent struct {
	Source common.Address `json:"source"`
	Clone  common.Address `json:"clone"`
}

func (ClonedEvent) EventName() string { return "Cloned" }

// EmergencyExitEnabledEvent is published once per instance.
type EmergencyExitEnabledEvent struct {
	Strategy common.Address `json:"strategy"`
}

func (EmergencyExitEnabledEvent) EventName() string { return "EmergencyExitEnabled" }

// TradeFactoryUpdatedEvent is published when the trade facility is replaced or removed (zero address).
type TradeFactoryUpdatedEvent struct {
	Strategy     common.Address `json:"strategy"`
	TradeFactory common.Address `json:"trade_factory"`
}

func (TradeFactoryUpdatedEvent) EventName() string { return "TradeFactoryUpdated" }

// SweptEvent is published when governance recovers a stray token.
type SweptEvent struct {
	Strategy common.Address `json:"strategy"`
	Token    common.Address `json:"token"`
	Amount   math.Int       `json:"amount"`
}

func (SweptEvent) EventName() string { return "Swept" }
