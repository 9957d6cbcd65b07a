package notify

import (
	"context"
	"fmt"

	"permit-workers/internal/common/aws"
)

// SNSPublisher sends every event to one topic. Subscribers filter on the
// eventType message attribute.
type SNSPublisher struct {
	client   *aws.SNSClient
	topicARN string
}

func NewSNSPublisher(client *aws.SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	_, err := p.client.PublishJSON(ctx, p.topicARN, "permit "+string(event.Type), event, map[string]string{
		"eventType":     string(event.Type),
		"applicationId": event.ApplicationID,
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", event.Type, err)
	}
	return nil
}
