package connectors

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// kafkaRow is the JSON wire form of one stream row.
type kafkaRow[K comparable, P any] struct {
	SyncTime    int64  `json:"sync_time"`
	OtherTime   int64  `json:"other_time,omitempty"`
	Key         K      `json:"key,omitempty"`
	Payload     P      `json:"payload,omitempty"`
	Hash        uint64 `json:"hash,omitempty"`
	Punctuation bool   `json:"punctuation,omitempty"`
}

// KafkaSink flattens batches into JSON records and produces them to a Kafka
// topic, partitioned by the event key. Deleted rows are not emitted;
// punctuations are, flagged as such, so a downstream reader can track the
// watermark.
type KafkaSink[K comparable, P any] struct {
	topic            string
	bootstrapServers string
	client           *kgo.Client
}

// NewKafkaSink creates a Kafka sink connector.
func NewKafkaSink[K comparable, P any](topic, bootstrapServers string) *KafkaSink[K, P] {
	return &KafkaSink[K, P]{
		topic:            topic,
		bootstrapServers: bootstrapServers,
	}
}

func (k *KafkaSink[K, P]) Open(_ *operator.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.DefaultProduceTopic(k.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka sink: create client: %w", err)
	}
	k.client = client
	return nil
}

func (k *KafkaSink[K, P]) WriteBatch(batch *stream.Batch[K, P]) error {
	n := batch.Count()
	for i := 0; i < n; i++ {
		punct := batch.IsPunctuation(i)
		if !punct && batch.IsDeleted(i) {
			continue
		}

		row := kafkaRow[K, P]{
			SyncTime:    batch.SyncTime[i],
			Punctuation: punct,
		}
		if !punct {
			row.OtherTime = batch.OtherTime[i]
			row.Key = batch.Key[i]
			row.Payload = batch.Payload[i]
			row.Hash = batch.Hash[i]
		}

		value, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("kafka sink: marshal row %d: %w", i, err)
		}

		rec := &kgo.Record{Value: value}
		if !punct {
			keyBytes, err := json.Marshal(batch.Key[i])
			if err != nil {
				return fmt.Errorf("kafka sink: marshal key at row %d: %w", i, err)
			}
			rec.Key = keyBytes
		}

		k.client.Produce(context.Background(), rec, nil)
	}

	// Flush to ensure delivery.
	if err := k.client.Flush(context.Background()); err != nil {
		return fmt.Errorf("kafka sink: flush: %w", err)
	}
	return nil
}

func (k *KafkaSink[K, P]) Close() error {
	if k.client != nil {
		k.client.Close()
	}
	return nil
}
