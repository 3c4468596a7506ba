package alert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

type mockSNS struct {
	published []*sns.PublishInput
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_Send(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:notices", WithSNSClient(mock))
	require.NoError(t, err)

	notice := types.Notice{
		Level:           types.NoticeCritical,
		OrchestrationID: "01JP3E1QZX7M2Q9T4R8V6W0YBD",
		Workflow:        "deploy.yml",
		Message:         "workflow run failed",
		Timestamp:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	err = sink.Send(context.Background(), notice)
	require.NoError(t, err)

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:notices", *pub.TopicArn)
	assert.Equal(t, "[CRITICAL] deploy.yml", *pub.Subject)

	var decoded types.Notice
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, types.NoticeCritical, decoded.Level)
	assert.Equal(t, "deploy.yml", decoded.Workflow)
	assert.Equal(t, "workflow run failed", decoded.Message)
}

func TestSNSSink_Name(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:notices", WithSNSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())
}

func TestSNSSink_EmptyTopicARN(t *testing.T) {
	_, err := NewSNSSink("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN required")
}

func TestSNSSink_SubjectTruncation(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:notices", WithSNSClient(mock))
	require.NoError(t, err)

	notice := types.Notice{
		Level:     types.NoticeWarning,
		Workflow:  "this-is-a-very-long-workflow-file-name-that-exceeds-the-normal-subject-length-limit-for-sns-messages-in-practice.yml",
		Message:   "test",
		Timestamp: time.Now(),
	}

	err = sink.Send(context.Background(), notice)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(*mock.published[0].Subject), 100)
}
