// Package sqsdlq adapts DLQ replay onto AWS SQS, used for dead-letter
// inspection and redelivery regardless of which Bus backend is active for
// ordinary publishing.
package sqsdlq

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Message is a single DLQ entry awaiting inspection.
type Message struct {
	Body          string
	ReceiptHandle string
	MessageID     string
}

type Client struct {
	sqs      *sqs.Client
	queueURL string
}

func NewClient(ctx context.Context, region, queueURL string) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{sqs: sqs.NewFromConfig(awsCfg), queueURL: queueURL}, nil
}

// Receive pulls up to maxMessages from the DLQ.
func (c *Client) Receive(ctx context.Context, maxMessages int32) ([]Message, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages from dlq: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			MessageID:     aws.ToString(m.MessageId),
		})
	}
	return messages, nil
}

// Delete removes a message by receipt handle, either because it was
// replayed successfully or because it was identified as poison.
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete dlq message: %w", err)
	}
	return nil
}
