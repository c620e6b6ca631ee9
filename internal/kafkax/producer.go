package kafkax

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// Producer publishes outbox envelopes. It recreates its writer once when a
// write fails with a network or metadata error.
type Producer struct {
	mu  sync.Mutex
	w   *kafka.Writer
	cfg ProducerConfig
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Producer{cfg: cfg, w: newWriter(cfg)}, nil
}

func newWriter(cfg ProducerConfig) *kafka.Writer {
	// Short metadata TTL so a moved broker is picked up without a restart.
	tr := &kafka.Transport{
		ClientID:    cfg.ClientID,
		MetadataTTL: 10 * time.Second,
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 20 * time.Millisecond,
		Transport:    tr,
	}
}

// Publish writes one message synchronously. Messages with the same key land
// on the same partition, so a ticket's events stay ordered.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	write := func() error {
		p.mu.Lock()
		w := p.w
		p.mu.Unlock()
		if w == nil {
			return errors.New("kafka producer closed")
		}
		cctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
		defer cancel()
		return w.WriteMessages(cctx, kafka.Message{Key: key, Value: value})
	}

	err := write()
	if err != nil && shouldReset(err) && ctx.Err() == nil {
		p.reset()
		return write()
	}
	return err
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	return err
}

func (p *Producer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return
	}
	_ = p.w.Close()
	p.w = newWriter(p.cfg)
}

func shouldReset(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, suspect := range []string{
		"dial tcp",
		"connection refused",
		"i/o timeout",
		"eof",
		"broken pipe",
		"connection reset",
		"not the leader",
		"unknown topic or partition",
	} {
		if strings.Contains(s, suspect) {
			return true
		}
	}
	return false
}
