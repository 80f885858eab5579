package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dinder-app/push-relay/internal/resolve"
	"github.com/dinder-app/push-relay/pkg/relay"
)

// Notifier is the notification entry point the consumer feeds. The HTTP
// layer provides the implementation so both ingress paths share one
// resolve-and-dispatch pipeline.
type Notifier interface {
	NotifyChatMessage(ctx context.Context, chatID, senderID, messageText string) (relay.DispatchReport, error)
}

// Receiver is the streaming-pull surface of *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ackAction int

const (
	ackMessage ackAction = iota
	nackMessage
)

// Consumer pulls chat-message events and turns each into a notification
// fan-out. Events that can never succeed are acked (after logging) or left
// to the dead-letter policy; transient failures are nacked for redelivery.
type Consumer struct {
	receiver Receiver
	notifier Notifier
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(receiver Receiver, notifier Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		receiver: receiver,
		notifier: notifier,
		logger:   logger.With("component", "IngestConsumer"),
		done:     make(chan struct{}),
	}
}

// Start begins the streaming pull in the background. It returns immediately;
// call Stop to drain and shut down.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		err := c.receiver.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			switch c.process(ctx, msg.Data) {
			case ackMessage:
				msg.Ack()
			case nackMessage:
				msg.Nack()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("receive loop terminated", "err", err)
		}
	}()
	c.logger.Info("Ingestion consumer started")
}

// Stop cancels the receive loop and waits for in-flight handlers to finish.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	c.logger.Info("Ingestion consumer stopped")
}

// process decides the ack outcome for one raw event.
func (c *Consumer) process(ctx context.Context, data []byte) ackAction {
	event, err := ParseChatMessageEvent(data)
	if err != nil {
		// Unparseable events will never succeed; nack so the dead-letter
		// policy captures them after max delivery attempts.
		c.logger.Warn("rejecting malformed event", "err", err)
		return nackMessage
	}

	log := c.logger.With("chat_id", event.ChatID, "sender_id", event.SenderID, "event_id", event.EventID)

	report, err := c.notifier.NotifyChatMessage(ctx, event.ChatID, event.SenderID, event.MessageText)
	if err != nil {
		if isTerminal(err) {
			// Redelivery cannot fix a missing chat or a bad member list.
			log.Warn("dropping undeliverable event", "err", err)
			return ackMessage
		}
		log.Error("event processing failed, will retry", "err", err)
		return nackMessage
	}

	log.Info("event dispatched", "sent", report.Sent, "failed", report.Failed)
	return ackMessage
}

func isTerminal(err error) bool {
	return errors.Is(err, resolve.ErrTargetNotFound) ||
		errors.Is(err, resolve.ErrInvalidSourceData) ||
		errors.Is(err, resolve.ErrSenderNotMember)
}

// EnsureSubscription creates the ingestion subscription with a dead-letter
// policy if it does not already exist, and returns its full resource name.
func EnsureSubscription(ctx context.Context, client *pubsub.Client, projectID, subscriptionID, topicID, dlqTopicID string, logger *slog.Logger) (string, error) {
	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subscriptionID)
	subConfig := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              fmt.Sprintf("projects/%s/topics/%s", projectID, topicID),
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID),
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := client.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
			return subName, nil
		}
		return "", fmt.Errorf("could not create subscription %s: %w", subscriptionID, err)
	}
	return subName, nil
}
