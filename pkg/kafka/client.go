// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"catalog-smart-go/internal/config"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a catalog change task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.CatalogChangeTask) error
}

// Producer 封装了目录变更事件的 Kafka 生产者。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// ProduceCatalogChange 发送一个目录变更任务到 Kafka。
func (p *Producer) ProduceCatalogChange(ctx context.Context, task tasks.CatalogChangeTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: taskBytes})
}

// Close 关闭生产者连接。
func (p *Producer) Close() error {
	return p.writer.Close()
}

const (
	initialFetchBackoff = time.Second
	maxFetchBackoff     = 30 * time.Second
)

// nextFetchBackoff 返回下一次拉取重试的等待时间，指数递增并封顶。
func nextFetchBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxFetchBackoff {
		return maxFetchBackoff
	}
	return d
}

// StartConsumer 启动一个 Kafka 消费者来处理目录变更任务。
// 拉取失败指数退避后重试；失败次数通过 Redis 计数，达到阈值后提交 offset 终止重试。
func StartConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "catalog-smart-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	backoff := initialFetchBackoff
	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Reader 已关闭，消费循环结束
				break
			}
			// 瞬时故障(broker 重启、网络抖动)退避后重试，消费者不退出
			log.Errorf("从 Kafka 读取消息失败, %s 后重试: %v", backoff, err)
			time.Sleep(backoff)
			backoff = nextFetchBackoff(backoff)
			continue
		}
		backoff = initialFetchBackoff

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.CatalogChangeTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理目录变更任务: TaskID=%s, Event=%s, codes=%d", task.TaskID, task.Event, len(task.Codes))
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理目录变更任务失败: TaskID=%s, Error: %v", task.TaskID, err)
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.TaskID)
			attempts, incErr := rdb.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = rdb.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("目录变更任务多次失败(>=3)，提交 offset 终止重试: TaskID=%s", task.TaskID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("目录变更任务处理成功: TaskID=%s", task.TaskID)
			_ = rdb.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.TaskID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
