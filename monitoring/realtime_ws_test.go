package monitoring

import (
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auditrisk/ml"
	"auditrisk/predlog"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedRecordFixture() predlog.Record {
	return predlog.Record{
		Features:      ml.AuditFeatures{AuditRisk: 2.4, InherentRisk: 3, Score: 0.6, Total: 15.2, MoneyValue: 1200},
		PredictedRisk: "High Risk",
	}
}

func startHub(t *testing.T) (*FeedHub, chan struct{}) {
	t.Helper()
	hub := NewFeedHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	return hub, done
}

func TestFeedHubPublishWithoutClients(t *testing.T) {
	hub, done := startHub(t)
	defer func() {
		hub.Stop()
		<-done
	}()

	for i := 0; i < 10; i++ {
		hub.Publish(feedRecordFixture())
	}
	assert.Zero(t, hub.ClientCount())
}

func TestFeedHubPublishNeverBlocks(t *testing.T) {
	// no Run loop: the queue fills and further messages are dropped
	hub := NewFeedHub(nil)
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(feedRecordFixture())
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestFeedHubDropsSlowClient(t *testing.T) {
	hub, done := startHub(t)
	defer func() {
		hub.Stop()
		<-done
	}()

	slow := &client{send: make(chan []byte), id: "slow"}
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(feedRecordFixture())

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestFeedHubStopClosesClients(t *testing.T) {
	hub, done := startHub(t)

	c := &client{send: make(chan []byte, 1), id: "idle"}
	hub.register <- c
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Zero(t, hub.ClientCount())
	_, open := <-c.send
	assert.False(t, open)
}

func TestFeedHubDeliversMessage(t *testing.T) {
	hub, done := startHub(t)
	defer func() {
		hub.Stop()
		<-done
	}()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(feedRecordFixture())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, PredictionLogged, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "High Risk", data[predlog.ColumnPredictedRisk])
	assert.Equal(t, 1200.0, data[ml.FeatureMoneyValue])
}

func TestFeedRecordNonFiniteAsNull(t *testing.T) {
	rec := feedRecordFixture()
	rec.Features.Score = math.NaN()
	rec.Features.Total = math.Inf(1)

	payload, err := json.Marshal(feedRecord(rec))
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.Nil(t, data[ml.FeatureScore])
	assert.Nil(t, data[ml.FeatureTotal])
	assert.Equal(t, 2.4, data[ml.FeatureAuditRisk])
}
