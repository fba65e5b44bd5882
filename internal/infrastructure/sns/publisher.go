package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anime-auth-api/internal/config"
	"github.com/anime-auth-api/internal/infrastructure/awsconf"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends audit events to a single SNS topic.
type Publisher struct {
	client   publishAPI
	topicARN string
	now      func() time.Time
}

type event struct {
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes"`
}

func NewPublisher(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	opts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &Publisher{
		client:   sns.NewFromConfig(awsCfg, opts...),
		topicARN: cfg.SNSEventsTopicARN,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Publish sends one event. The event type is also set as a message
// attribute so subscribers can filter on it.
func (p *Publisher) Publish(ctx context.Context, eventType string, attrs map[string]string) error {
	body, err := json.Marshal(event{Type: eventType, OccurredAt: p.now(), Attributes: attrs})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(eventType)},
		},
	})
	return err
}
