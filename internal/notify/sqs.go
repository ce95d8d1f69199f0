package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSSender.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender publishes messages as JSON onto the mail queue.
type SQSSender struct {
	SQS      SQSAPI
	QueueURL string
	From     string
}

func NewSQSSender(client SQSAPI, queueURL, from string) *SQSSender {
	return &SQSSender{
		SQS:      client,
		QueueURL: queueURL,
		From:     from,
	}
}

func (s *SQSSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("notify: message has no recipient")
	}
	if msg.From == "" {
		msg.From = s.From
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"subject": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Subject),
			},
			"attachments": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(len(msg.Attachments))),
			},
		},
	}

	if _, err := s.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
