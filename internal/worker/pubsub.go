package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Dispatch errors. Both are acknowledged so the message is not redelivered.
var (
	ErrMalformedMessage = errors.New("malformed job message")
	ErrUnknownJobType   = errors.New("unknown job type")
)

// JobMessage is the payload published to the jobs topic.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Date is required by prewarm_day (YYYY-MM-DD).
	Date string `json:"date,omitempty"`
}

// Dispatcher routes job messages to their job.
type Dispatcher struct {
	prewarm *PrewarmJob
	purge   *PurgeJob
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil job rejects its job type.
func NewDispatcher(prewarm *PrewarmJob, purge *PurgeJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{prewarm: prewarm, purge: purge, logger: logger}
}

// Dispatch parses data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobPrewarmDay:
		if d.prewarm == nil {
			return fmt.Errorf("%w: %s is not configured", ErrUnknownJobType, msg.JobType)
		}
		day, err := time.Parse(time.DateOnly, msg.Date)
		if err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrMalformedMessage, msg.Date)
		}
		_, err = d.prewarm.Run(ctx, day)
		return err

	case JobPurgeExpired:
		if d.purge == nil {
			return fmt.Errorf("%w: %s is not configured", ErrUnknownJobType, msg.JobType)
		}
		_, err := d.purge.Run(ctx)
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher

	// MaxOutstanding bounds concurrently processed messages. Default: 4
	MaxOutstanding int

	Logger zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	maxOutstanding := cfg.MaxOutstanding
	if maxOutstanding <= 0 {
		maxOutstanding = 4
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// handle runs one message and reports whether it should be acknowledged.
// Failed jobs are redelivered; messages that can never succeed are not.
func (h *PubSubHandler) handle(ctx context.Context, id string, data []byte) bool {
	start := time.Now()
	logger := h.logger.With().Str("message_id", id).Logger()

	err := h.dispatcher.Dispatch(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed successfully")
		return true
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownJobType):
		logger.Warn().Err(err).Msg("dropping job message")
		return true
	default:
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return false
	}
}
