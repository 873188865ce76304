/**
 * Queue Consumer for the Inscription Worker
 *
 * Consumes processing runs submitted through Asynq. The API enqueues one
 * task per inscription image; the worker drives it through the pipeline.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/epigraphia/inscription-worker/internal/errors"
	"github.com/epigraphia/inscription-worker/internal/pipeline"
)

// TaskTypeProcessRun is the asynq task type for one processing run.
const TaskTypeProcessRun = "inscription:process"

// RunJobData is the task payload enqueued by the API.
type RunJobData struct {
	RunID      string                 `json:"runId"`
	ImageID    string                 `json:"imageId"`
	ImagePath  string                 `json:"imagePath,omitempty"`
	ImageData  []byte                 `json:"imageData,omitempty"`
	ScriptHint string                 `json:"scriptHint,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Consumer handles run consumption from the Asynq queue.
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor pipeline.RunProcessor
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         pipeline.RunProcessor
	ProcessingTimeout time.Duration
}

// NewConsumer creates a new queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
	}

	mux.HandleFunc(TaskTypeProcessRun, consumer.handleProcessRun)

	return consumer, nil
}

// Start starts the queue consumer.
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// Enqueue submits one run for asynchronous processing.
func (c *Consumer) Enqueue(ctx context.Context, job *RunJobData) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal run job: %w", err)
	}

	task := asynq.NewTask(TaskTypeProcessRun, payload)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName)); err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", job.RunID, err)
	}
	return nil
}

// handleProcessRun processes one inscription run task.
func (c *Consumer) handleProcessRun(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var jobData RunJobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal run job: %w", err)
	}

	log.Printf("[Run %s] Processing inscription: imageID=%s", jobData.RunID, jobData.ImageID)

	timeout := 5 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.Process(processCtx, &pipeline.ProcessRequest{
		RunID:      jobData.RunID,
		ImageID:    jobData.ImageID,
		ImagePath:  jobData.ImagePath,
		ImageData:  jobData.ImageData,
		ScriptHint: jobData.ScriptHint,
		Metadata:   jobData.Metadata,
	})

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Run %s] Processing timed out after %v (timeout: %v)", jobData.RunID, duration, timeout)
			timeoutErr := errors.NewProcessingTimeoutError(jobData.RunID, timeout, err)
			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		log.Printf("[Run %s] Processing failed after %v: %v", jobData.RunID, duration, err)
		return fmt.Errorf("run processing failed: %w", err)
	}

	log.Printf("[Run %s] Processing completed in %v: method=%s, glyphs=%d, confidence=%.2f",
		jobData.RunID, duration, result.Method, len(result.Glyphs), result.Confidence)
	return nil
}

// GetStatistics returns consumer statistics.
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
