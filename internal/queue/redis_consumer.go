/**
 * Direct Redis Queue Consumer for the Inscription Worker
 *
 * Compatible with the web tier's list-based queue. Uses plain Redis LIST and
 * HASH operations so producers in other runtimes need no client library
 * beyond Redis itself.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/epigraphia/inscription-worker/internal/pipeline"
)

// RedisRunJob is one queued run as stored in the queue's data hash.
type RedisRunJob struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    RunPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RunPayload contains the actual run data.
type RunPayload struct {
	RunID      string                 `json:"runId"`
	ImageID    string                 `json:"imageId"`
	ImagePath  string                 `json:"imagePath,omitempty"`
	ImageData  []byte
	ScriptHint string                 `json:"scriptHint,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts imageData either as a base64 string or omitted. Web
// producers send base64; batch producers send a path instead.
func (p *RunPayload) UnmarshalJSON(data []byte) error {
	type Alias RunPayload
	aux := &struct {
		ImageData interface{} `json:"imageData,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal run payload: %w", err)
	}

	if aux.ImageData != nil {
		s, ok := aux.ImageData.(string)
		if !ok {
			return fmt.Errorf("imageData must be a base64 string, got %T", aux.ImageData)
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("failed to decode base64 imageData: %w", err)
		}
		p.ImageData = decoded
	}

	return nil
}

// RedisConsumer handles run consumption from the Redis list queue.
type RedisConsumer struct {
	client    *redis.Client
	processor pipeline.RunProcessor
	config    *RedisConsumerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration.
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         pipeline.RunProcessor
	ProcessingTimeout time.Duration
}

// NewRedisConsumer creates a new Redis-based queue consumer.
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "epigraphy:runs"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing runs from the queue.
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer.
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes runs.
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
			if err := c.processNextRun(); err != nil {
				if err.Error() != "no runs available" {
					log.Printf("Worker %d error: %v", id, err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextRun fetches and processes the next run from the queue.
func (c *RedisConsumer) processNextRun() error {
	// Block for up to 5 seconds waiting for a run
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no runs available")
		}
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid run result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get run data: %w", err)
	}

	var job RedisRunJob
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal run: %w", err)
	}

	c.markRun(job.Payload.RunID, "processing", nil)

	log.Printf("Processing run %s: imageID=%s", job.Payload.RunID, job.Payload.ImageID)

	processResult, err := c.processRun(&job)
	if err != nil {
		log.Printf("Run %s failed: %v", job.Payload.RunID, err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			// Re-queue for retry
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), job.ID, updatedData)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			log.Printf("Run %s re-queued for retry (attempt %d/%d)",
				job.Payload.RunID, job.Attempts, job.MaxRetries)
		} else {
			c.markRun(job.Payload.RunID, "failed", map[string]interface{}{
				"error":    err.Error(),
				"attempts": job.Attempts,
			})
		}
	} else {
		c.markRun(job.Payload.RunID, "completed", processResult)
		log.Printf("Run %s completed successfully", job.Payload.RunID)
	}

	return nil
}

// processRun drives one run through the pipeline with a timeout.
func (c *RedisConsumer) processRun(job *RedisRunJob) (*pipeline.ProcessingResult, error) {
	timeout := 5 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.processor.Process(ctx, &pipeline.ProcessRequest{
		RunID:      job.Payload.RunID,
		ImageID:    job.Payload.ImageID,
		ImagePath:  job.Payload.ImagePath,
		ImageData:  job.Payload.ImageData,
		ScriptHint: job.Payload.ScriptHint,
		Metadata:   job.Payload.Metadata,
	})
}

// markRun maintains the queue's tracking sets and publishes a streaming
// event. Run state in Postgres is handled by the pipeline itself.
func (c *RedisConsumer) markRun(runID string, status string, result interface{}) {
	switch status {
	case "processing":
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
	case "completed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:completed", c.config.QueueName), runID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:results", c.config.QueueName), runID, resultData)
		}
	case "failed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:failed", c.config.QueueName), runID)
		if result != nil {
			errorData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:errors", c.config.QueueName), runID, errorData)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("run:%s", status),
		"runId":     runID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

// GetStats returns queue statistics.
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, fmt.Sprintf("%s:processing", c.config.QueueName)).Result()
	completed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:completed", c.config.QueueName)).Result()
	failed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:failed", c.config.QueueName)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
