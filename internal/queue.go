package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	stan "github.com/nats-io/stan.go"

	// Database drivers for the sql transport.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// PubSub couples the publisher and subscriber ends of the lane transport.
// The default gochannel driver keeps everything in-process; the broker
// drivers make lanes durable across restarts.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Close shuts down both ends and any underlying connections.
func (p *PubSub) Close() error {
	var err error
	for _, closeFn := range p.closers {
		err = errors.Join(err, closeFn())
	}
	return err
}

// NewPubSub builds the lane transport for the configured driver.
func NewPubSub(cfg QueueConfig) (*PubSub, error) {
	logger := watermill.NewStdLogger(false, false)

	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = "gochannel"
	}

	switch driver {
	case "gochannel":
		buffer := cfg.Buffer
		if buffer <= 0 {
			buffer = 64
		}
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logger)
		return &PubSub{
			Publisher:  ch,
			Subscriber: ch,
			closers:    []func() error{ch.Close},
		}, nil

	case "amqp":
		if cfg.AMQP.URL == "" {
			return nil, errors.New("amqp url is required")
		}
		amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
		if err != nil {
			return nil, err
		}
		pub, err := wmamaqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, err
		}
		sub, err := wmamaqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		return &PubSub{
			Publisher:  pub,
			Subscriber: sub,
			closers:    []func() error{pub.Close, sub.Close},
		}, nil

	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, errors.New("kafka brokers are required")
		}
		pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
		if err != nil {
			return nil, err
		}
		sub, err := wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
			Brokers:       cfg.Kafka.Brokers,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, nil, wmkafka.DefaultMarshaler{}, logger)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		return &PubSub{
			Publisher:  pub,
			Subscriber: sub,
			closers:    []func() error{pub.Close, sub.Close},
		}, nil

	case "nats":
		if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
			return nil, errors.New("nats cluster_id and client_id are required")
		}
		var stanOpts []stan.Option
		if cfg.NATS.URL != "" {
			stanOpts = append(stanOpts, stan.NatsURL(cfg.NATS.URL))
		}
		pub, err := wmnats.NewStreamingPublisher(wmnats.StreamingPublisherConfig{
			ClusterID:   cfg.NATS.ClusterID,
			ClientID:    cfg.NATS.ClientID + "-pub",
			Marshaler:   wmnats.GobMarshaler{},
			StanOptions: stanOpts,
		}, logger)
		if err != nil {
			return nil, err
		}
		sub, err := wmnats.NewStreamingSubscriber(wmnats.StreamingSubscriberConfig{
			ClusterID:   cfg.NATS.ClusterID,
			ClientID:    cfg.NATS.ClientID + "-sub",
			DurableName: cfg.NATS.Durable,
			Unmarshaler: wmnats.GobMarshaler{},
			StanOptions: stanOpts,
		}, logger)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		return &PubSub{
			Publisher:  pub,
			Subscriber: sub,
			closers:    []func() error{pub.Close, sub.Close},
		}, nil

	case "sql":
		if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
			return nil, errors.New("sql driver and dsn are required")
		}
		schemaAdapter, offsetsAdapter, err := sqlAdapters(cfg.SQL.Dialect)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
			SchemaAdapter:        schemaAdapter,
			AutoInitializeSchema: cfg.SQL.InitializeSchema,
		}, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
			ConsumerGroup:    cfg.SQL.ConsumerGroup,
			SchemaAdapter:    schemaAdapter,
			OffsetsAdapter:   offsetsAdapter,
			InitializeSchema: cfg.SQL.InitializeSchema,
		}, logger)
		if err != nil {
			_ = pub.Close()
			_ = db.Close()
			return nil, err
		}
		return &PubSub{
			Publisher:  pub,
			Subscriber: sub,
			closers:    []func() error{pub.Close, sub.Close, db.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}
}

func amqpConfigFromMode(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamaqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlAdapters(dialect string) (wmsql.SchemaAdapter, wmsql.OffsetsAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, wmsql.DefaultPostgreSQLOffsetsAdapter{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, wmsql.DefaultMySQLOffsetsAdapter{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}
