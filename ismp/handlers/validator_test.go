package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/ismp/common/errors"
	"github.com/oasisprotocol/ismp/ismp/api"
)

func TestValidateStateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("ChallengePeriodIsStrict", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		height := f.update(20, nowSecs(f.host))

		f.host.advance(challengePeriod)
		_, err := ValidateStateMachine(ctx, f.host, height)
		require.ErrorIs(err, api.ErrChallengePeriodNotElapsed, "elapsed equal to the challenge period")
		require.True(errors.IsRetryable(err))

		var cpErr *api.ChallengePeriodNotElapsedError
		require.ErrorAs(err, &cpErr)
		require.Equal(testClientID, cpErr.ID)
		require.Equal(challengePeriod, cpErr.CurrentTime.Sub(cpErr.UpdateTime))

		f.host.advance(time.Second)
		smClient, err := ValidateStateMachine(ctx, f.host, height)
		require.NoError(err)
		require.Equal(f.sm, smClient)
	})

	t.Run("ClockBeforeUpdate", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		f.host.updateTimes[testClientID] = f.host.now.Add(time.Hour)
		_, err := ValidateStateMachine(ctx, f.host, f.height)
		require.ErrorIs(err, api.ErrChallengePeriodNotElapsed)
	})

	t.Run("FrozenConsensusClient", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		require.NoError(f.host.FreezeConsensusClient(ctx, testClientID))
		_, err := ValidateStateMachine(ctx, f.host, f.height)
		require.ErrorIs(err, api.ErrFrozenConsensusClient)

		var fcErr *api.FrozenConsensusClientError
		require.ErrorAs(err, &fcErr)
		require.Equal(testClientID, fcErr.ID)
	})

	t.Run("FrozenStateMachine", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		require.NoError(f.host.FreezeStateMachine(ctx, f.height))
		_, err := ValidateStateMachine(ctx, f.host, f.height)
		require.ErrorIs(err, api.ErrFrozenStateMachine)

		below := f.height
		below.Height--
		_, err = ValidateStateMachine(ctx, f.host, below)
		require.NoError(err, "heights below the frozen height are usable")
	})

	t.Run("ExpiredClientStillValidates", func(t *testing.T) {
		require := require.New(t)

		// Expiry only blocks consensus updates, proofs against already
		// finalized heights remain usable.
		f := newFixture()
		f.host.advance(unbondingPeriod)
		expired, err := IsExpired(ctx, f.host, testClientID)
		require.NoError(err)
		require.True(expired)

		smClient, err := ValidateStateMachine(ctx, f.host, f.height)
		require.NoError(err)
		require.Equal(f.sm, smClient)
	})

	t.Run("UnknownStateMachine", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		height := f.height
		height.ID.StateID = "EVM-404"
		_, err := ValidateStateMachine(ctx, f.host, height)
		require.ErrorIs(err, api.ErrUnknownStateMachine)
	})

	t.Run("UnknownConsensusClient", func(t *testing.T) {
		require := require.New(t)

		f := newFixture()
		height := f.height
		height.ID.ConsensusClientID = api.MustConsensusClientID("NONE")
		_, err := ValidateStateMachine(ctx, f.host, height)
		require.Error(err)
	})
}
