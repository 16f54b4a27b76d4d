package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// sesAPI is the subset of the SES v2 client used by SES.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SES delivers through the AWS SES v2 SendEmail API.
type SES struct {
	region string
	client sesAPI
}

// NewSES builds an SES provider. Static credentials are used when an access
// key pair is configured; otherwise the default AWS credential chain applies.
func NewSES(ctx context.Context, cfg ProviderConfig) (*SES, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.APIKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	var clientOpts []func(*sesv2.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		clientOpts = append(clientOpts, func(o *sesv2.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	return newSESWithClient(cfg.Region, sesv2.NewFromConfig(awsCfg, clientOpts...)), nil
}

func newSESWithClient(region string, client sesAPI) *SES {
	return &SES{region: region, client: client}
}

func (s *SES) GetName() string { return TypeSES }

func (s *SES) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	out, err := s.client.SendEmail(ctx, s.buildInput(msg))
	if err != nil {
		return nil, classifySESError(err)
	}
	return sentResult(aws.ToString(out.MessageId), map[string]string{"region": s.region}), nil
}

// HealthCheck reads the account, which fails on bad credentials or region.
func (s *SES) HealthCheck(ctx context.Context) error {
	out, err := s.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses: health check: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("ses: sending is disabled for this account")
	}
	return nil
}

func (s *SES) buildInput(msg *Message) *sesv2.SendEmailInput {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if msg.ID != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("email_id"), Value: aws.String(msg.ID)}}
	}
	return input
}

// sesPermanentCodes are SES error codes that a retry cannot fix.
var sesPermanentCodes = map[string]bool{
	"MessageRejected":                    true,
	"MailFromDomainNotVerifiedException": true,
	"AccountSuspendedException":          true,
	"SendingPausedException":             true,
	"BadRequestException":                true,
	"NotFoundException":                  true,
}

func classifySESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:  TypeSES,
			Message:   apiErr.ErrorCode() + ": " + apiErr.ErrorMessage(),
			Permanent: sesPermanentCodes[apiErr.ErrorCode()],
			Err:       err,
		}
	}
	return fmt.Errorf("ses: send email: %w", err)
}
