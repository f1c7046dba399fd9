package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

type mockSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.inputs = append(m.inputs, params)
	return &ses.SendEmailOutput{}, m.err
}

type mockSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	return &sns.PublishOutput{}, m.err
}

func testNotification() core.JobNotification {
	return core.JobNotification{
		JobID:         "job-1",
		ConfigID:      "cfg-1",
		Status:        core.JobCompletedWithErrors,
		TotalRows:     10,
		ProcessedRows: 10,
		ErrorRows:     1,
		ResultURL:     "https://docs.example.com/deck",
	}
}

func TestNotifyRoutesChannels(t *testing.T) {
	sesMock, snsMock := &mockSES{}, &mockSNS{}
	n := New(sesMock, snsMock, "sync@example.com")

	err := n.Notify(context.Background(), []string{
		"email:ops@example.com",
		"sms:+15550100",
		"topic:arn:aws:sns:us-east-1:123456789012:sync",
	}, testNotification())
	require.NoError(t, err)

	require.Len(t, sesMock.inputs, 1)
	email := sesMock.inputs[0]
	assert.Equal(t, []string{"ops@example.com"}, email.Destination.ToAddresses)
	assert.Equal(t, "sync@example.com", aws.ToString(email.Source))
	assert.Equal(t, "Sync completed_with_errors: 10/10 rows, 1 errors", aws.ToString(email.Message.Subject.Data))
	assert.Contains(t, aws.ToString(email.Message.Body.Text.Data), "https://docs.example.com/deck")

	require.Len(t, snsMock.inputs, 2)
	assert.Equal(t, "+15550100", aws.ToString(snsMock.inputs[0].PhoneNumber))
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:sync", aws.ToString(snsMock.inputs[1].TopicArn))
}

func TestNotifyContinuesAfterFailure(t *testing.T) {
	boom := errors.New("throttled")
	sesMock, snsMock := &mockSES{err: boom}, &mockSNS{}
	n := New(sesMock, snsMock, "sync@example.com")

	err := n.Notify(context.Background(), []string{"email:ops@example.com", "bogus", "sms:+15550100"}, testNotification())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, snsMock.inputs, 1, "sms should still be sent")
}

func TestNotifyEmailRequiresSender(t *testing.T) {
	sesMock := &mockSES{}
	n := New(sesMock, &mockSNS{}, "")

	err := n.Notify(context.Background(), []string{"email:ops@example.com"}, testNotification())
	assert.Error(t, err)
	assert.Empty(t, sesMock.inputs)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, Log{}.Notify(context.Background(), []string{"email:a@b.c"}, testNotification()))
}
