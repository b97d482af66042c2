package observability

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeperlabs/keeper/internal/price"
	"github.com/keeperlabs/keeper/internal/solana"
)

func TestCheckAggregatesWorstStatus(t *testing.T) {
	m := NewHealthMonitor(time.Minute)
	m.Register("good", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})
	m.Register("shaky", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "slow"}
	})

	health := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Components, 2)
	assert.Equal(t, "shaky", health.Components["shaky"].Name)
	assert.False(t, health.Components["good"].LastChecked.IsZero())
}

func TestAlertOnTransition(t *testing.T) {
	m := NewHealthMonitor(time.Minute)
	status := StatusHealthy
	m.Register("rpc", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status}
	})

	m.Check(context.Background())
	// First observation emits the initial status.
	alert := <-m.Alerts()
	assert.Equal(t, "info", alert.Level)

	status = StatusUnhealthy
	m.Check(context.Background())
	alert = <-m.Alerts()
	assert.Equal(t, "critical", alert.Level)
	assert.Equal(t, "rpc", alert.Component)

	// No transition, no alert.
	m.Check(context.Background())
	select {
	case a := <-m.Alerts():
		t.Fatalf("unexpected alert: %+v", a)
	default:
	}
}

func TestRPCCheck(t *testing.T) {
	chain := solana.NewStubClient()
	check := RPCCheck(chain)

	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	chain.SetFailNext()
	assert.Equal(t, StatusUnhealthy, check(context.Background()).Status)
}

func TestPriceCheck(t *testing.T) {
	prices := price.NewStubSource()
	check := PriceCheck(prices)

	// No price: degraded, not unhealthy.
	assert.Equal(t, StatusDegraded, check(context.Background()).Status)

	prices.SetPrice(price.AssetSOL, decimal.NewFromInt(150))
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
}

func TestStateDirCheck(t *testing.T) {
	check := StateDirCheck(t.TempDir())
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	bad := StateDirCheck("/proc/definitely-not-writable")
	assert.Equal(t, StatusUnhealthy, bad(context.Background()).Status)
}
