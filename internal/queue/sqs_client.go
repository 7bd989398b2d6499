package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultRegion = "us-east-1"

type sender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient sends pipeline jobs to an SQS queue. On a FIFO queue jobs for
// the same raw file or document share a message group, so the worker sees
// them in order.
type SQSClient struct {
	client   *sqs.Client
	api      sender
	queueURL string
	fifo     bool
}

// NewSQSClient constructs an SQS-backed queue client for queueURL.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("INTAKE_SQS_QUEUE_URL is required")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(cfg)
	s := newSQSClient(client, queueURL)
	s.client = client
	return s, nil
}

func newSQSClient(api sender, queueURL string) *SQSClient {
	return &SQSClient{api: api, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

// Send delivers a job to the queue with its kind and request id as message
// attributes.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attributes(msg),
	}
	if s.fifo {
		in.MessageGroupId = aws.String(msg.Target())
		in.MessageDeduplicationId = aws.String(dedupID(msg))
	}
	if _, err := s.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send %s job for %s: %w", msg.Kind, msg.Target(), err)
	}
	return nil
}

func attributes(msg Message) map[string]sqstypes.MessageAttributeValue {
	attrs := map[string]sqstypes.MessageAttributeValue{
		"kind": {DataType: aws.String("String"), StringValue: aws.String(string(msg.Kind))},
	}
	if msg.RequestID != "" {
		attrs["requestId"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.RequestID)}
	}
	return attrs
}

// dedupID collapses retries of one request for one target inside the FIFO
// five-minute window. Classify-anyway is a distinct job from a plain classify.
func dedupID(msg Message) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%t|%s", msg.Kind, msg.Target(), msg.Anyway, msg.RequestID)))
	return hex.EncodeToString(sum[:])
}

// Raw exposes the underlying SQS client for consumers that poll the same queue.
func (s *SQSClient) Raw() *sqs.Client { return s.client }

// QueueURL returns the configured queue URL.
func (s *SQSClient) QueueURL() string { return s.queueURL }

var _ Client = (*SQSClient)(nil)
