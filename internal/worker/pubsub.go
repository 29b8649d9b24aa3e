package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ridefinder/ridefinder/internal/graph"
)

// Job types carried in JobMessage.JobType.
const (
	JobGraphReload = "graph_reload"
	JobGraphWarmup = "graph_warmup"
)

var (
	// ErrUnknownJob is returned for messages with an unrecognised job type.
	ErrUnknownJob = errors.New("unknown job type")
	// ErrMalformedMessage is returned when a message body is not a JobMessage.
	ErrMalformedMessage = errors.New("malformed job message")
)

// GraphReloader rebuilds the road graph. Implemented by *graph.Cache.
type GraphReloader interface {
	Reload(ctx context.Context) (*graph.Snapshot, error)
}

// JobMessage is the body of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// SkipWarmup suppresses the warm-up that normally follows a reload.
	SkipWarmup bool `json:"skip_warmup,omitempty"`
}

// Jobs executes job messages against the graph cache and the warm-up job.
type Jobs struct {
	Graphs GraphReloader
	Warmup *WarmupJob // optional
	Logger zerolog.Logger
}

// Run executes a single job.
func (j *Jobs) Run(ctx context.Context, msg JobMessage) error {
	switch msg.JobType {
	case JobGraphReload:
		snap, err := j.Graphs.Reload(ctx)
		if err != nil {
			return fmt.Errorf("reload graph: %w", err)
		}
		j.Logger.Info().
			Str("version", snap.Version).
			Int("nodes", snap.Stats.Nodes).
			Int("edges", snap.Stats.Edges).
			Msg("graph reloaded from job")
		if msg.SkipWarmup {
			return nil
		}
		return j.warmup(ctx)
	case JobGraphWarmup:
		return j.warmup(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// Dispatch decodes a message body and runs it.
func (j *Jobs) Dispatch(ctx context.Context, data []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg.JobType, j.Run(ctx, msg)
}

func (j *Jobs) warmup(ctx context.Context) error {
	if j.Warmup == nil {
		return nil
	}
	result := j.Warmup.Run(ctx)

	// More failures than successes usually means the graph does not cover the targets.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many warm-up failures: %d/%d", result.Failed, result.TotalTargets)
	}
	return nil
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *Jobs
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *Jobs
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Reloads are serialised by the graph cache; more than a couple in flight only queue.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	jobType, err := h.jobs.Dispatch(ctx, msg.Data)
	if handleResult(logger, startTime, jobType, err) {
		msg.Ack()
		return
	}
	msg.Nack()
}

// handleResult logs a job outcome and reports whether the message should be acknowledged.
// Unknown jobs are acked so they are not redelivered.
func handleResult(logger zerolog.Logger, startTime time.Time, jobType string, err error) bool {
	switch {
	case err == nil:
		logger.Info().
			Str("job_type", jobType).
			Dur("duration", time.Since(startTime)).
			Msg("job completed successfully")
		return true
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", jobType).Msg("unknown job type")
		return true
	case errors.Is(err, ErrMalformedMessage):
		logger.Error().Err(err).Msg("failed to parse message")
		return false
	default:
		logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		return false
	}
}
