package syncbus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	sarama "github.com/IBM/sarama"
)

type kafkaSubscription struct {
	pc    sarama.PartitionConsumer
	chans []chan struct{}
}

// KafkaBus implements Bus using a Kafka backend. Each topic maps to a Kafka
// topic consumed from the newest offset, so only releases published while a
// waiter is subscribed wake it up, which is exactly the semantic the resolver
// retry loop needs.
type KafkaBus struct {
	producer  sarama.SyncProducer
	consumer  sarama.Consumer
	mu        sync.Mutex
	subs      map[string]*kafkaSubscription
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewKafkaBus creates a new KafkaBus connecting to the given brokers.
func NewKafkaBus(brokers []string, cfg *sarama.Config) (*KafkaBus, error) {
	if !cfg.Producer.Return.Successes {
		cfg.Producer.Return.Successes = true
	}
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &KafkaBus{
		producer: producer,
		consumer: consumer,
		subs:     make(map[string]*kafkaSubscription),
	}, nil
}

// Publish implements Bus.Publish.
func (b *KafkaBus) Publish(ctx context.Context, topic string) error {
	msg := &sarama.ProducerMessage{Topic: kafkaTopic(topic), Value: sarama.StringEncoder("1")}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		pc, err := b.consumer.ConsumePartition(kafkaTopic(topic), 0, sarama.OffsetNewest)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		sub = &kafkaSubscription{pc: pc}
		b.subs[topic] = sub
		go b.dispatch(sub)
	}
	sub.chans = append(sub.chans, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

// dispatch fans incoming events out to local subscribers. Sends happen under
// the mutex so Unsubscribe cannot close a channel mid-send; they never block.
func (b *KafkaBus) dispatch(sub *kafkaSubscription) {
	for range sub.pc.Messages() {
		b.mu.Lock()
		for _, ch := range sub.chans {
			select {
			case ch <- struct{}{}:
				b.delivered.Add(1)
			default:
			}
		}
		b.mu.Unlock()
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *KafkaBus) Unsubscribe(ctx context.Context, topic string, ch chan struct{}) error {
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, topic)
		b.mu.Unlock()
		return sub.pc.Close()
	}
	b.mu.Unlock()
	return nil
}

// Close shuts down the producer and consumer. Partition consumers are closed
// outside the mutex (their dispatch goroutines take it per message) and
// subscriber channels under it, after dispatch has drained.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*kafkaSubscription)
	b.mu.Unlock()
	for _, sub := range subs {
		_ = sub.pc.Close()
	}
	b.mu.Lock()
	for _, sub := range subs {
		for _, ch := range sub.chans {
			close(ch)
		}
	}
	b.mu.Unlock()
	if err := b.producer.Close(); err != nil {
		_ = b.consumer.Close()
		return err
	}
	return b.consumer.Close()
}

// Metrics returns the published and delivered counts.
func (b *KafkaBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}

// kafkaTopic rewrites a bus topic into a legal Kafka topic name; ':' is not
// allowed there.
func kafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, ":", ".")
}
