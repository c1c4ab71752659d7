package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/ledger"
)

func TestSplitIDs(t *testing.T) {
	require.Equal(t, []string{"TN-1", "TN-2"}, splitIDs(" TN-1, ,TN-2,TN-1"))
	require.Empty(t, splitIDs(""))
}

func TestDescribe(t *testing.T) {
	total := decimal.RequireFromString("60")
	require.Contains(t, describe(ledger.Reconciliation{BookingID: "TN-1"}), "MISSING")
	require.Contains(t, describe(ledger.Reconciliation{BookingID: "TN-1", Items: 2, ItemsTotal: total}), "PENDING")
	require.Contains(t, describe(ledger.Reconciliation{BookingID: "TN-1", Items: 2, ItemsTotal: total, EventSeen: true,
		EventTotal: decimal.RequireFromString("55")}), "MISMATCH TN-1: items 60.00, event 55.00")
	require.Contains(t, describe(ledger.Reconciliation{BookingID: "TN-1", Items: 2, ItemsTotal: total, EventSeen: true,
		EventTotal: total, Matched: true}), "OK")
}
