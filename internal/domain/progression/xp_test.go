package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

func TestCreditThenDebitRestoresBalance(t *testing.T) {
	for _, amount := range []int{1, 10, 250} {
		p := NewUserProgression("u1", 0, t0)
		p.XP = 42

		require.NoError(t, p.Credit(amount, t0))
		require.NoError(t, p.Debit(amount, t0))
		assert.Equal(t, 42, p.XP.Int())
	}
}

func TestDebit_BeyondBalanceFails(t *testing.T) {
	p := NewUserProgression("u1", 0, t0)
	p.XP = 30

	err := p.Debit(31, t0)
	assert.ErrorIs(t, err, shared.ErrInsufficientXP)
	assert.Equal(t, 30, p.XP.Int())

	require.NoError(t, p.Debit(30, t0))
	assert.Equal(t, 0, p.XP.Int())

	assert.ErrorIs(t, p.Debit(1, t0), shared.ErrInsufficientXP)
	assert.True(t, p.XP.IsValid())
}

func TestCreditDebit_RejectNonPositive(t *testing.T) {
	p := NewUserProgression("u1", 0, t0)

	assert.ErrorIs(t, p.Credit(0, t0), shared.ErrInvalidAmount)
	assert.ErrorIs(t, p.Debit(-5, t0), shared.ErrInvalidAmount)
	assert.True(t, shared.IsValidation(p.Credit(-1, t0)))
}

func TestQuizReward(t *testing.T) {
	assert.Equal(t, 30, QuizReward(3, LegacyCorrectAnswerXP, 1))
	assert.Equal(t, 45, QuizReward(3, LegacyCorrectAnswerXP, 1.5))
	assert.Equal(t, 0, QuizReward(0, LegacyCorrectAnswerXP, 1))
}

func TestParseRegenPolicy(t *testing.T) {
	p, err := ParseRegenPolicy("incremental", time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, PolicyIncremental, p.Name())

	p, err = ParseRegenPolicy("FULL_RESTORE", 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, PolicyFullRestore, p.Name())

	_, err = ParseRegenPolicy("every_5_seconds", time.Minute, time.Hour)
	assert.True(t, shared.IsConfiguration(err))

	_, err = ParseRegenPolicy("incremental", 0, 0)
	assert.True(t, shared.IsConfiguration(err))
}
