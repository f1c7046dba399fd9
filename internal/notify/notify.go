// Package notify delivers job notifications over AWS SES (email) and SNS
// (sms and topics).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/metrics"
)

// SESService is the part of the SES client used for email.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the part of the SNS client used for sms and topics.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier sends a JobNotification to every channel of a sync configuration.
type Notifier struct {
	ses    SESService
	sns    SNSService
	sender string
}

// New creates a notifier on the given clients. sender is the verified SES
// source address.
func New(sesClient SESService, snsClient SNSService, sender string) *Notifier {
	return &Notifier{ses: sesClient, sns: snsClient, sender: sender}
}

// NewFromRegion loads the default AWS configuration for region and builds
// SES and SNS clients from it.
func NewFromRegion(ctx context.Context, region, sender string) (*Notifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(ses.NewFromConfig(cfg), sns.NewFromConfig(cfg), sender), nil
}

// Notify sends n to each channel. Every channel is attempted; failures are
// logged and returned joined.
func (s *Notifier) Notify(ctx context.Context, channels []string, n core.JobNotification) error {
	log := logging.FromContext(ctx).With("job_id", n.JobID, "sync_config_id", n.ConfigID)

	var errs []error
	for _, raw := range channels {
		ch, err := core.ParseChannel(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		err = s.send(ctx, ch, n)
		result := "ok"
		if err != nil {
			result = "error"
			log.Warn("notification failed", "channel", ch.Kind, "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", ch.Kind, err))
		} else {
			log.Debug("notification sent", "channel", ch.Kind)
		}
		metrics.Notifications.WithLabelValues(string(ch.Kind), result).Inc()
	}
	return errors.Join(errs...)
}

func (s *Notifier) send(ctx context.Context, ch core.Channel, n core.JobNotification) error {
	switch ch.Kind {
	case core.ChannelEmail:
		return s.sendEmail(ctx, ch.Address, n.Subject(), n.Body())
	case core.ChannelSMS:
		_, err := s.sns.Publish(ctx, &sns.PublishInput{
			PhoneNumber: aws.String(ch.Address),
			Message:     aws.String(n.Subject()),
		})
		return err
	case core.ChannelTopic:
		_, err := s.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(ch.Address),
			Subject:  aws.String(n.Subject()),
			Message:  aws.String(n.Body()),
		})
		return err
	}
	return fmt.Errorf("unsupported channel %q", ch.Kind)
}

func (s *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	if s.sender == "" {
		return errors.New("no sender address configured")
	}
	_, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.sender),
	})
	return err
}

// Log is a Notifier that only logs. It stands in when delivery is disabled.
type Log struct{}

func (Log) Notify(ctx context.Context, channels []string, n core.JobNotification) error {
	slog.InfoContext(ctx, "job notification",
		"job_id", n.JobID,
		"sync_config_id", n.ConfigID,
		"status", n.Status,
		"channels", len(channels),
	)
	return nil
}

var (
	_ core.Notifier = (*Notifier)(nil)
	_ core.Notifier = Log{}
)
