package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

type partitionStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *partitionStats) add(other partitionStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, queue domain.JobQueue) error {
	if client == nil || consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && queue == nil {
		return fmt.Errorf("job queue is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total partitionStats
	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}

		stats, err := processPartition(ctx, consumer, client, queue, cfg, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	queue domain.JobQueue,
	cfg config,
	partition int32,
	limit int,
) (partitionStats, error) {
	var stats partitionStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = max(newest-int64(limit), oldest)
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumerErr, ok := <-pc.Errors():
			if ok && consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= newest {
				return stats, nil
			}

			stats.processed++
			replayed, err := replayMessage(ctx, queue, cfg, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

// replayMessage возвращает задачу из DLQ в очередь. Нераспознанные сообщения
// и задачи вне фильтра пропускаются, ошибка возвращается только при сбое очереди.
func replayMessage(ctx context.Context, queue domain.JobQueue, cfg config, msg *sarama.ConsumerMessage) (bool, error) {
	entry := log.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	event, err := kafka.ParseDeadLetterEvent(msg)
	if err != nil {
		entry.WithError(err).Warn("skip unsupported dlq message")
		return false, nil
	}
	if cfg.topics != nil {
		if _, ok := cfg.topics[event.JobTopic]; !ok {
			return false, nil
		}
	}

	entry = entry.WithFields(log.Fields{
		"job_id":    event.JobID,
		"job_topic": event.JobTopic,
		"attempts":  event.Attempts,
	})
	if !cfg.execute {
		entry.WithField("error", event.Error).Info("dlq replay candidate")
		return true, nil
	}

	if err := queue.Enqueue(ctx, event.JobTopic, event.Payload, replayPolicy(event.JobTopic, event.Policy)); err != nil {
		return false, fmt.Errorf("enqueue job %s: %w", event.JobID, err)
	}
	entry.Info("job replayed into queue")
	return true, nil
}

// replayPolicy сохраняет политику исходной задачи; пустая заменяется политикой топика.
func replayPolicy(topic string, policy domain.RetryPolicy) domain.RetryPolicy {
	if policy.Attempts > 0 {
		return policy
	}
	switch topic {
	case domain.TopicProcessPayment:
		return domain.PaymentJobPolicy
	case domain.TopicSendNotification:
		return domain.NotificationJobPolicy
	default:
		return domain.CartJobPolicy
	}
}
