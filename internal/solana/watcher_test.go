package solana

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_HandleNotification(t *testing.T) {
	w := NewWatcher(DefaultWatcherConfig("Keeper111111111111111111111111111111111111"))

	msg := []byte(`{
		"method": "logsNotification",
		"params": {
			"result": {
				"context": {"slot": 12345},
				"value": {"signature": "abc-sig", "err": null, "logs": []}
			},
			"subscription": 1
		}
	}`)
	w.handleMessage(msg)

	select {
	case event := <-w.eventChan:
		assert.Equal(t, Signature("abc-sig"), event.Signature)
		assert.Equal(t, uint64(12345), event.Slot)
		assert.False(t, event.Failed)
	default:
		t.Fatal("expected an activity event")
	}

	assert.Equal(t, int64(1), w.Stats().EventsSeen)
}

func TestWatcher_HandleFailedTransaction(t *testing.T) {
	w := NewWatcher(DefaultWatcherConfig("Keeper111111111111111111111111111111111111"))

	msg := []byte(`{
		"method": "logsNotification",
		"params": {
			"result": {
				"context": {"slot": 99},
				"value": {"signature": "bad-sig", "err": {"InstructionError": [0, "Custom"]}}
			}
		}
	}`)
	w.handleMessage(msg)

	event := <-w.eventChan
	assert.True(t, event.Failed)
}

func TestWatcher_IgnoresSubscriptionConfirmation(t *testing.T) {
	w := NewWatcher(DefaultWatcherConfig("Keeper111111111111111111111111111111111111"))

	w.handleMessage([]byte(`{"jsonrpc":"2.0","result":7,"id":1}`))

	select {
	case <-w.eventChan:
		t.Fatal("confirmation must not produce an event")
	default:
	}
	assert.Equal(t, int64(0), w.Stats().EventsSeen)
}

func TestWatcher_RequiresWallet(t *testing.T) {
	w := NewWatcher(WatcherConfig{WSEndpoint: "wss://example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := w.Start(ctx)
	require.Error(t, err)
}
