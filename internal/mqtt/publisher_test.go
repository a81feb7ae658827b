package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/loadplan/internal/planner"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connectErr  error
	publishErr  error
	stall       bool
	messages    []published
	disconnects int
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) Connect() paho.Token { return doneToken(f.connectErr) }

func (f *fakeClient) Disconnect(quiesce uint) { f.disconnects++ }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.messages = append(f.messages, published{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload.([]byte),
	})
	if f.stall {
		return pendingToken()
	}
	return doneToken(f.publishErr)
}

func withFakeClient(t *testing.T, cli *fakeClient) {
	t.Helper()
	orig := newClient
	newClient = func(*paho.ClientOptions) pahoClient { return cli }
	t.Cleanup(func() { newClient = orig })
}

func testPlan() planner.Plan {
	return planner.Plan{
		ID:         "plan-1",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TariffName: "default",
		Unit:       "PHP/kWh",
		MaxLoadKW:  5,
		TotalCost:  3,
		Hours: []planner.HourAssignment{
			{Hour: 0, Label: "12 AM"},
			{Hour: 1, Label: "1 AM", Appliances: []string{"Washing Machine"}, LoadKW: 1.5},
			{Hour: 2, Label: "2 AM", Appliances: []string{"Washing Machine", "TV"}, LoadKW: 1.6},
			{Hour: 3, Label: "3 AM", Appliances: []string{"TV"}, LoadKW: 0.1},
		},
	}
}

func TestPublishPlan(t *testing.T) {
	cli := &fakeClient{}
	withFakeClient(t, cli)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "test", QoS: 1}, zerolog.Nop())
	require.NoError(t, err)

	plan := testPlan()
	require.NoError(t, pub.PublishPlan(context.Background(), plan))

	require.Len(t, cli.messages, 3)

	byTopic := make(map[string]published)
	for _, m := range cli.messages {
		assert.Equal(t, byte(1), m.qos)
		assert.True(t, m.retained)
		byTopic[m.topic] = m
	}

	full, ok := byTopic["loadplan/plan"]
	require.True(t, ok, "plan summary topic missing")
	var got planner.Plan
	require.NoError(t, json.Unmarshal(full.payload, &got))
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, plan.TotalCost, got.TotalCost)

	washer, ok := byTopic["loadplan/schedule/washing-machine"]
	require.True(t, ok, "washer schedule topic missing")
	var msg scheduleMessage
	require.NoError(t, json.Unmarshal(washer.payload, &msg))
	assert.Equal(t, "Washing Machine", msg.Appliance)
	assert.Equal(t, "plan-1", msg.PlanID)
	assert.Equal(t, []int{1, 2}, msg.Hours)

	tv, ok := byTopic["loadplan/schedule/tv"]
	require.True(t, ok, "tv schedule topic missing")
	require.NoError(t, json.Unmarshal(tv.payload, &msg))
	assert.Equal(t, []int{2, 3}, msg.Hours)
}

func TestPublishPlanTopicPrefix(t *testing.T) {
	cli := &fakeClient{}
	withFakeClient(t, cli)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "test", TopicPrefix: "home/energy"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, pub.PublishPlan(context.Background(), testPlan()))
	require.NotEmpty(t, cli.messages)
	assert.Equal(t, "home/energy/plan", cli.messages[0].topic)
}

func TestPublishPlanBrokerError(t *testing.T) {
	cli := &fakeClient{publishErr: errors.New("broker unavailable")}
	withFakeClient(t, cli)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "test"}, zerolog.Nop())
	require.NoError(t, err)

	err = pub.PublishPlan(context.Background(), testPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestPublishPlanContextCancelled(t *testing.T) {
	cli := &fakeClient{stall: true}
	withFakeClient(t, cli)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "test"}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pub.PublishPlan(ctx, testPlan())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPublisherConnectError(t *testing.T) {
	cli := &fakeClient{connectErr: errors.New("connection refused")}
	withFakeClient(t, cli)

	_, err := NewPublisher(Config{Broker: "tcp://badhost:1883", ClientID: "test"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://badhost:1883")
}

func TestDisconnect(t *testing.T) {
	cli := &fakeClient{}
	withFakeClient(t, cli)

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "test"}, zerolog.Nop())
	require.NoError(t, err)

	pub.Disconnect()
	assert.Equal(t, 1, cli.disconnects)
}
