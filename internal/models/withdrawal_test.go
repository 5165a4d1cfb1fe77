package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	statuses := []string{
		WithdrawalPending, WithdrawalProcessing, WithdrawalApproved,
		WithdrawalPaid, WithdrawalRejected, WithdrawalCancelled,
	}

	legal := map[string]map[string]bool{
		WithdrawalPending:    {WithdrawalProcessing: true, WithdrawalRejected: true},
		WithdrawalProcessing: {WithdrawalApproved: true, WithdrawalRejected: true},
		WithdrawalApproved:   {WithdrawalPaid: true, WithdrawalRejected: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, legal[from][to], CanTransition(from, to), "%s to %s", from, to)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	assert.False(t, TerminalStatus(WithdrawalPending))
	assert.False(t, TerminalStatus(WithdrawalProcessing))
	assert.False(t, TerminalStatus(WithdrawalApproved))
	assert.True(t, TerminalStatus(WithdrawalPaid))
	assert.True(t, TerminalStatus(WithdrawalRejected))
	assert.True(t, TerminalStatus(WithdrawalCancelled))
}
