package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName project 事件使用的 topic exchange
	ExchangeName = "solarcrm.events"

	// TraceHeader 消息头中的 trace id
	TraceHeader = "x-trace-id"

	heartbeat = 10 * time.Second
)

// NewConnection 连接 RabbitMQ。name 会显示在管理界面的连接列表中
func NewConnection(url, name string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(name)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ as %s: %w", name, err)
	}
	return conn, nil
}

// DeclareExchange durable topic exchange，重复声明是幂等的
func DeclareExchange(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	return nil
}
