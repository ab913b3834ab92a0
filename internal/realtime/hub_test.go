package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"easymanager/internal/models"
)

func TestHub_PublishReachesEverySubscriber(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	_, first := hub.Subscribe()
	_, second := hub.Subscribe()

	hub.Publish(context.Background(), BillDeleted("abc"))

	for _, ch := range []<-chan Event{first, second} {
		e := <-ch
		assert.Equal(t, EventBillUpdated, e.Name)
		assert.Equal(t, BillChange{Type: ChangeDeleted, BillID: "abc"}, e.Payload)
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	_, ch := hub.Subscribe()

	hub.Publish(context.Background(), SalesUpdated())
	hub.Publish(context.Background(), SalesUpdated())

	assert.Len(t, ch, 1)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	id, ch := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(id)
	hub.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount())

	hub.Close()
	_, ch = hub.Subscribe()
	_, open = <-ch
	assert.False(t, open)
}

func TestEvents_Payloads(t *testing.T) {
	sale := models.Sale{InvoiceID: "INV-1", Date: "2024-03-05", Total: 12}
	raw, err := json.Marshal(NewSale(sale, 30))
	require.NoError(t, err)

	var decoded struct {
		Event   string                 `json:"event"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, EventNewSale, decoded.Event)
	assert.Equal(t, "INV-1", decoded.Payload["InvoiceID"])
	assert.Equal(t, 30.0, decoded.Payload["dailyTotal"])

	p := models.Product{ProductID: "P-1"}
	change := ProductChanged(ChangeAdded, p).Payload.(ProductChange)
	assert.Equal(t, "P-1", change.Product.ProductID)
	assert.Equal(t, ProductChange{Type: ChangeDeleted, ProductID: "x"}, ProductDeleted("x").Payload)
}

func TestDecodeWireEvent(t *testing.T) {
	e, err := decodeWireEvent(`{"event":"billUpdated","payload":{"type":"added"}}`)
	require.NoError(t, err)
	assert.Equal(t, EventBillUpdated, e.Name)
	assert.JSONEq(t, `{"type":"added"}`, string(e.Payload.(json.RawMessage)))

	_, err = decodeWireEvent(`{"payload":{}}`)
	assert.Error(t, err)
	_, err = decodeWireEvent(`not json`)
	assert.Error(t, err)
}

func TestRedisBridge_UnreachableRedisStaysLocal(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	hub := NewHub(4, zap.NewNop())
	_, ch := hub.Subscribe()
	bridge := NewRedisBridge(client, "easymanager:test", hub, zap.NewNop())

	done := make(chan struct{})
	go func() {
		bridge.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the subscribe failed")
	}

	bridge.Publish(context.Background(), SalesUpdated())
	require.Len(t, ch, 1)
	assert.Equal(t, EventSalesUpdated, (<-ch).Name)
}
