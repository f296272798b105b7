package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Seams for tests.
var (
	loadDefaultAWSConfig   = config.LoadDefaultConfig
	newSESClientFromConfig = func(cfg aws.Config, optFns ...func(*sesv2.Options)) sesAPI {
		return sesv2.NewFromConfig(cfg, optFns...)
	}
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures the SES sender. BaseEndpoint is optional and points
// the client at a local emulator.
type SESOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BaseEndpoint    string
	From            string
}

// SESSender delivers through the SES v2 SendEmail API.
type SESSender struct {
	client sesAPI
	from   string
}

func NewSESSender(ctx context.Context, o SESOptions) (*SESSender, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newSESClientFromConfig(cfg, func(opts *sesv2.Options) {
		if o.BaseEndpoint != "" {
			opts.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
	})
	return &SESSender{client: client, from: o.From}, nil
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
