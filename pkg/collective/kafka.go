package collective

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// KafkaTransport backs a Group for workers running as separate OS processes,
// one Kafka topic per destination worker. src and tag travel as record
// headers; the payload carries the archive or schema bytes untouched.
type KafkaTransport struct {
	id, n, localPeerCount int
	client                *kgo.Client
	topicPrefix           string
	inbox                 chan message
	router                *router

	cancel context.CancelFunc
}

// NewKafkaTransport connects to brokers and starts consuming this worker's
// own topic (topicPrefix-<id>) in the background. Call Close to stop the
// poll loop and release the client. localPeerCount is how many of the n
// workers share this machine's cores — pass 1 when every worker runs on its
// own host, the common case for a Kafka-per-process deployment.
func NewKafkaTransport(ctx context.Context, id, n, localPeerCount int, brokers []string, topicPrefix string) (*KafkaTransport, error) {
	if localPeerCount < 1 {
		localPeerCount = 1
	}
	myTopic := fmt.Sprintf("%s-%d", topicPrefix, id)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(myTopic),
		kgo.ConsumerGroup(fmt.Sprintf("%s-worker-%d", topicPrefix, id)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka client for worker %d: %v", shuffleerr.ErrTransportFailed, id, err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	inbox := make(chan message, 256)
	t := &KafkaTransport{
		id:             id,
		n:              n,
		localPeerCount: localPeerCount,
		client:         client,
		topicPrefix:    topicPrefix,
		inbox:          inbox,
		router:         newRouter(inbox),
		cancel:         cancel,
	}
	go t.pollLoop(pollCtx)
	return t, nil
}

func (t *KafkaTransport) pollLoop(ctx context.Context) {
	log := slog.Default().With("component", "collective", "worker_id", t.id)
	for {
		fetches := t.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error("kafka fetch error", "topic", topic, "partition", partition, "err", err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := message{dst: t.id, payload: rec.Value}
			for _, h := range rec.Headers {
				switch h.Key {
				case "src":
					if v, err := strconv.Atoi(string(h.Value)); err == nil {
						msg.src = v
					}
				case "tag":
					if v, err := strconv.Atoi(string(h.Value)); err == nil {
						msg.tag = Tag(v)
					}
				}
			}
			select {
			case t.inbox <- msg:
			case <-ctx.Done():
			}
		})
	}
}

func (t *KafkaTransport) WorkerID() int       { return t.id }
func (t *KafkaTransport) WorkerCount() int    { return t.n }
func (t *KafkaTransport) LocalPeerCount() int { return t.localPeerCount }

func (t *KafkaTransport) Send(ctx context.Context, dst int, tag Tag, payload []byte) error {
	headers := []kgo.RecordHeader{
		{Key: "src", Value: []byte(strconv.Itoa(t.id))},
		{Key: "tag", Value: []byte(strconv.Itoa(int(tag)))},
	}
	if roundID, ok := RoundIDFromContext(ctx); ok {
		headers = append(headers, kgo.RecordHeader{Key: "round_id", Value: []byte(roundID)})
	}
	rec := &kgo.Record{
		Topic:   fmt.Sprintf("%s-%d", t.topicPrefix, dst),
		Value:   payload,
		Headers: headers,
	}
	result := t.client.ProduceSync(ctx, rec)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("%w: kafka produce to worker %d: %v", shuffleerr.ErrTransportFailed, dst, err)
	}
	return nil
}

func (t *KafkaTransport) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	return t.router.recv(ctx, src, tag)
}

func (t *KafkaTransport) Probe(ctx context.Context) (int, Tag, error) {
	return t.router.probe(ctx)
}

func (t *KafkaTransport) Close() error {
	t.cancel()
	t.client.Close()
	return nil
}
