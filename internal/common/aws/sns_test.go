package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSNSClient_PublishJSON(t *testing.T) {
	api := new(mockSNS)
	api.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123:billing" &&
			aws.ToString(in.Message) == `{"reason":"canceled"}` &&
			aws.ToString(in.MessageAttributes["eventType"].StringValue) == "subscription.blocked"
	})).Return(&sns.PublishOutput{MessageId: aws.String("msg-1")}, nil)

	client := NewSNSClientWithAPI(api, "arn:aws:sns:us-east-1:123:billing")
	id, err := client.PublishJSON(context.Background(), "subscription.blocked", "Access blocked", map[string]string{"reason": "canceled"})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	api.AssertExpectations(t)
}

func TestSNSClient_PublishJSON_Error(t *testing.T) {
	api := new(mockSNS)
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	client := NewSNSClientWithAPI(api, "arn:aws:sns:us-east-1:123:billing")
	_, err := client.PublishJSON(context.Background(), "subscription.blocked", "Access blocked", map[string]string{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
