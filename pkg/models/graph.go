package models

import (
    "fmt"

    "github.com/alim08/coingraph/pkg/validation"
)

// WalletLink is the synthesized linkage for one transaction: one sender and
// one or two receivers drawn from the address pool.
type WalletLink struct {
    Timestamp string   `json:"timestamp" validate:"required"`
    TxID      string   `json:"tx_id" validate:"required,txid"`
    Sender    string   `json:"sender" validate:"required,address"`
    Receivers []string `json:"receivers" validate:"min=1,max=2,unique,dive,address"`
}

// Validate checks tags plus sender/receiver disjointness.
func (l WalletLink) Validate() error {
    if errs := validation.ValidateStruct(l); len(errs) > 0 {
        return errs
    }
    for _, r := range l.Receivers {
        if r == l.Sender {
            return fmt.Errorf("receiver %s is also the sender", r)
        }
    }
    return nil
}

// GraphStats summarises node and edge counts.
type GraphStats struct {
    Wallets      int64 `json:"wallets"`
    Transactions int64 `json:"transactions"`
    Edges        int64 `json:"edges"`
    Sent         int64 `json:"sent"`
    Received     int64 `json:"received"`
}

// Direction selects which side of a transaction a wallet sits on.
type Direction string

const (
    DirectionSent     Direction = "sent"
    DirectionReceived Direction = "received"
)

// WalletActivity is the number of edges a wallet has in one direction.
type WalletActivity struct {
    Address string `json:"wallet"`
    Count   int64  `json:"count"`
}

// DailyCount is the number of transactions stamped on a calendar day.
type DailyCount struct {
    Day   string `json:"day"`
    Count int64  `json:"txn_count"`
}
