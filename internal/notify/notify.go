// Package notify sends SMS reminders through AWS SNS.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Publisher is the transport seam; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, phoneNumber, message string) (messageID string, err error)
}

// Notifier validates and normalizes destinations before publishing.
type Notifier struct {
	publisher     Publisher
	defaultRegion string
	logger        *slog.Logger
}

// New creates a Notifier on the given publisher. defaultRegion is the phone
// number parsing region for numbers given without a country code.
func New(publisher Publisher, defaultRegion string, logger *slog.Logger) *Notifier {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &Notifier{publisher: publisher, defaultRegion: defaultRegion, logger: logger}
}

// SendSMS normalizes the destination to E.164 and publishes the message.
func (n *Notifier) SendSMS(ctx context.Context, to, body string) (string, error) {
	e164, err := NormalizePhone(to, n.defaultRegion)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", to, err)
	}
	id, err := n.publisher.Publish(ctx, e164, body)
	if err != nil {
		return "", fmt.Errorf("publishing sms: %w", err)
	}
	n.logger.Info("sms sent", "to", e164, "message_id", id)
	return id, nil
}

// SNSPublisher publishes directly to a phone number via SNS.
type SNSPublisher struct {
	client *sns.Client
}

// NewSNSPublisher loads the default AWS config chain (env, shared config,
// instance role) for the given region.
func NewSNSPublisher(ctx context.Context, region string) (*SNSPublisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &SNSPublisher{client: sns.NewFromConfig(cfg)}, nil
}

func (p *SNSPublisher) Publish(ctx context.Context, phoneNumber, message string) (string, error) {
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &phoneNumber,
		Message:     &message,
	})
	if err != nil {
		return "", err
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}
