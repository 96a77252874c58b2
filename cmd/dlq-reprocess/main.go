package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envPostgresDSN     = "MARKETPLACE_POSTGRES_DSN"
)

type config struct {
	brokers     []string
	sourceTopic string
	postgresDSN string
	topics      map[string]struct{}
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayDependencies связывает источник DLQ с очередью, куда возвращаются задачи.
// queue равна nil в dry-run.
type replayDependencies struct {
	client   offsetClient
	consumer partitionConsumerSource
	queue    domain.JobQueue
	closers  []func() error
}

func (d *replayDependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

var newReplayDependencies = func(ctx context.Context, cfg config) (*replayDependencies, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "marketplace-dlq-reprocess"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	deps := &replayDependencies{client: client, closers: []func() error{client.Close}}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}
	deps.consumer = consumer
	deps.closers = append(deps.closers, consumer.Close)

	if !cfg.execute {
		return deps, nil
	}

	logger := log.WithField("component", "dlq-reprocess")
	store, err := postgres.Open(ctx, cfg.postgresDSN, postgres.WithStoreLogger(logger))
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	deps.closers = append(deps.closers, store.Close)
	deps.queue = jobs.NewQueue(postgres.NewJobRepository(store), logger)

	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	_ = godotenv.Load()

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		topicsRaw  string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.postgresDSN, "dsn", "", "PostgreSQL DSN of the job store (fallback: "+envPostgresDSN+")")
	fs.StringVar(&topicsRaw, "job-topics", "", "replay only these job topics, comma-separated (default: all)")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, errors.New("source-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, errors.New("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, errors.New("idle-timeout must be > 0")
	}

	if topics := splitList(topicsRaw); len(topics) > 0 {
		cfg.topics = make(map[string]struct{}, len(topics))
		for _, topic := range topics {
			cfg.topics[topic] = struct{}{}
		}
	}

	cfg.postgresDSN = strings.TrimSpace(cfg.postgresDSN)
	if cfg.postgresDSN == "" {
		cfg.postgresDSN = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if cfg.execute && cfg.postgresDSN == "" {
		return config{}, fmt.Errorf("%s (or -dsn) is required in execute mode", envPostgresDSN)
	}

	return cfg, nil
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if value := strings.TrimSpace(chunk); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	return runReplay(ctx, cfg, deps.client, deps.consumer, deps.queue)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
