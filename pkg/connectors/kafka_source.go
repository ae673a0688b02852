package connectors

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// KafkaSource consumes JSON rows from a Kafka topic and assembles them into
// batches. Rows are assumed to arrive sync-time-ordered within the topic;
// the source does not reorder, matching the merge operator's precondition.
type KafkaSource[K comparable, P any] struct {
	topic            string
	bootstrapServers string
	startupMode      string
	consumerGroup    string
	pool             stream.Pool[K, P]
	hasher           stream.Hasher[K]
}

// NewKafkaSource creates a Kafka source connector.
func NewKafkaSource[K comparable, P any](pool stream.Pool[K, P], topic, bootstrapServers, startupMode, consumerGroup string) *KafkaSource[K, P] {
	return &KafkaSource[K, P]{
		topic:            topic,
		bootstrapServers: bootstrapServers,
		startupMode:      startupMode,
		consumerGroup:    consumerGroup,
		pool:             pool,
		hasher:           stream.DefaultHasher[K](),
	}
}

func (k *KafkaSource[K, P]) Open(_ *operator.Context) error { return nil }

func (k *KafkaSource[K, P]) Run(ctx *operator.Context, out chan<- *stream.Batch[K, P]) error {
	defer close(out)

	opts := []kgo.Opt{
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.ConsumeTopics(k.topic),
	}

	if k.consumerGroup != "" {
		opts = append(opts, kgo.ConsumerGroup(k.consumerGroup))
	}

	switch k.startupMode {
	case "earliest-offset", "earliest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	case "latest-offset", "latest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	default:
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("kafka source: create client: %w", err)
	}
	defer client.Close()

	batch := k.pool.Get()

	flush := func() bool {
		if batch.Count() == 0 {
			return true
		}
		batch.Seal()
		select {
		case out <- batch:
			ctx.Metrics.BatchesEmitted.Add(1)
			ctx.Metrics.RowsCopied.Add(int64(batch.Count()))
			batch = k.pool.Get()
			return true
		case <-ctx.Done():
			k.pool.Put(batch)
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			k.pool.Put(batch)
			return nil
		default:
		}

		fetches := client.PollFetches(ctx.Ctx)
		if ctx.Ctx.Err() != nil {
			k.pool.Put(batch)
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				ctx.Logger.Error("kafka fetch error", "topic", e.Topic, "partition", e.Partition, "error", e.Err)
				ctx.Metrics.Errors.Add(1)
			}
			continue
		}

		stop := false
		fetches.EachRecord(func(rec *kgo.Record) {
			if stop {
				return
			}
			var row kafkaRow[K, P]
			if err := json.Unmarshal(rec.Value, &row); err != nil {
				ctx.Logger.Error("kafka json decode error", "error", err)
				ctx.Metrics.Errors.Add(1)
				return
			}
			if row.Punctuation {
				batch.AddPunctuation(row.SyncTime)
			} else {
				hash := row.Hash
				if hash == 0 {
					hash = k.hasher(row.Key)
				}
				batch.AddEvent(row.SyncTime, row.OtherTime, row.Key, row.Payload, hash)
			}
			if batch.Count() == batch.Cap() {
				stop = !flush()
			}
		})
		if stop {
			return nil
		}

		if !flush() {
			return nil
		}
	}
}

func (k *KafkaSource[K, P]) Close() error { return nil }
