package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/awaistahir/loadplan/internal/planner"
)

// Config defines the connection parameters for the plan publisher.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// pahoClient is the slice of the Paho client the publisher needs, so tests
// can stand in for the real broker connection.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher pushes finished plans to an MQTT broker: the whole plan on one
// topic and each appliance's run-hours on its own, all retained so a
// controller that reconnects picks up the latest schedule.
type Publisher struct {
	cli    pahoClient
	prefix string
	qos    byte
	log    zerolog.Logger
}

// NewPublisher connects to the broker. The returned Publisher satisfies
// planner.Publisher.
func NewPublisher(cfg Config, log zerolog.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Error().Err(err).Msg("mqtt connection lost")
	}

	c := newClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, token.Error())
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "loadplan"
	}
	return &Publisher{cli: c, prefix: prefix, qos: cfg.QoS, log: log}, nil
}

// scheduleMessage is what an appliance controller subscribes to.
type scheduleMessage struct {
	Appliance string    `json:"appliance"`
	PlanID    string    `json:"plan_id"`
	Hours     []int     `json:"hours"`
	CreatedAt time.Time `json:"created_at"`
}

// PublishPlan sends the plan summary and one schedule message per
// appliance that got hours assigned.
func (p *Publisher) PublishPlan(ctx context.Context, plan planner.Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	if err := p.publish(ctx, p.prefix+"/plan", payload); err != nil {
		return fmt.Errorf("publishing plan: %w", err)
	}

	hoursByName := make(map[string][]int)
	for _, row := range plan.Hours {
		for _, name := range row.Appliances {
			hoursByName[name] = append(hoursByName[name], row.Hour)
		}
	}

	for name, hours := range hoursByName {
		msg := scheduleMessage{
			Appliance: name,
			PlanID:    plan.ID,
			Hours:     hours,
			CreatedAt: plan.CreatedAt,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/schedule/%s", p.prefix, topicSlug(name))
		if err := p.publish(ctx, topic, payload); err != nil {
			return fmt.Errorf("publishing schedule for %s: %w", name, err)
		}
	}

	p.log.Debug().Str("plan_id", plan.ID).Int("appliances", len(hoursByName)).Msg("plan published")
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte) error {
	token := p.cli.Publish(topic, p.qos, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect gracefully closes the broker connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// topicSlug makes an appliance name safe inside an MQTT topic.
func topicSlug(name string) string {
	slug := strings.ToLower(name)
	for _, bad := range []string{" ", "/", "+", "#"} {
		slug = strings.ReplaceAll(slug, bad, "-")
	}
	return slug
}
