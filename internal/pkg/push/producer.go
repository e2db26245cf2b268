// Package push publishes mobile push notifications to RabbitMQ, where the
// push delivery service consumes them.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rabbitmq/amqp091-go"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

// Message is the body consumers receive
type Message struct {
	AccountIDs []uint            `json:"accountIds"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher sends push messages
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Producer publishes to a durable topic exchange
type Producer struct {
	conn       *amqp091.Connection
	channel    channel
	exchange   string
	routingKey string

	declareOnce sync.Once
	declareErr  error
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ and opens a channel
func NewProducer(cfg config.PushConfig) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Producer{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (p *Producer) declare() error {
	p.declareOnce.Do(func() {
		p.declareErr = p.channel.ExchangeDeclare(
			p.exchange, // name
			"topic",    // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
	})
	return p.declareErr
}

// Publish sends msg as JSON
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	if len(msg.AccountIDs) == 0 {
		return nil
	}
	if err := p.declare(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		})
	if err != nil {
		return err
	}

	log.Infof("[Push] Published %q for %d account(s) to exchange '%s'", msg.Title, len(msg.AccountIDs), p.exchange)
	return nil
}

// Close gracefully closes the channel and connection
func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogPublisher is used when push delivery is disabled
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg Message) error {
	log.Infof("[Push] Push disabled, dropping %q for %d account(s)", msg.Title, len(msg.AccountIDs))
	return nil
}
