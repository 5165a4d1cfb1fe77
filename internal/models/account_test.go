package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceAffecting(t *testing.T) {
	affecting := []string{
		KindPurchase, KindAdReward, KindConversionDebit, KindConversionCredit,
		KindChapterSpend, KindWriterEarning, KindWithdrawalPayout,
	}
	for _, kind := range affecting {
		assert.True(t, BalanceAffecting(kind), kind)
	}

	assert.False(t, BalanceAffecting(KindWithdrawalHold))
	assert.False(t, BalanceAffecting(KindWithdrawalRelease))
}
