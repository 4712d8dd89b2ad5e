package registry_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
)

var owner = common.HexToAddress("0x0000000000000000000000000000000000000a01")

type flatSGP struct{ *pricing.CorrelatedSGP }

func (flatSGP) Name() string { return "flat" }

func TestUpgradeSwapsBehindHandle(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := chain.New(chain.NewManualClock(at), slog.New(slog.DiscardHandler))
	reg := registry.New(owner)

	h, err := registry.Register[pricing.SGPCombinator](reg, registry.SGPCombinator, "v1", pricing.NewCorrelatedSGP(), at)
	require.NoError(t, err)
	assert.Equal(t, "correlated", h.Get().Name())

	_, err = registry.Register[pricing.SGPCombinator](reg, registry.SGPCombinator, "v1", pricing.NewCorrelatedSGP(), at)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = c.Execute(context.Background(), func(tx *chain.Tx) error {
		return reg.Upgrade(tx, common.HexToAddress("0xbad"), registry.SGPCombinator, "v2", flatSGP{pricing.NewCorrelatedSGP()})
	})
	assert.EqualError(t, err, "Only the contract owner may perform this action")

	err = c.Execute(context.Background(), func(tx *chain.Tx) error {
		return reg.Upgrade(tx, owner, registry.SGPCombinator, "v2", "not a combinator")
	})
	assert.Error(t, err)

	err = c.Execute(context.Background(), func(tx *chain.Tx) error {
		if err := reg.Upgrade(tx, owner, registry.SGPCombinator, "v2", flatSGP{pricing.NewCorrelatedSGP()}); err != nil {
			return err
		}
		return errors.New("revert after upgrade")
	})
	require.Error(t, err)
	assert.Equal(t, "v1", h.Version())

	require.NoError(t, c.Execute(context.Background(), func(tx *chain.Tx) error {
		return reg.Upgrade(tx, owner, registry.SGPCombinator, "v2", flatSGP{pricing.NewCorrelatedSGP()})
	}))
	assert.Equal(t, "flat", h.Get().Name())
	assert.Equal(t, "v2", h.Version())

	info, err := reg.Get(registry.SGPCombinator)
	require.NoError(t, err)
	assert.Len(t, info.History, 2)
	assert.Equal(t, []string{registry.SGPCombinator}, reg.List())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
