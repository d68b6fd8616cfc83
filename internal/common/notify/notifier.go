package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awsclients "template-publisher/internal/common/aws"
	"template-publisher/internal/common/config"
	"template-publisher/internal/common/logger"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Failure summarizes a run that ended with a non-2xx status.
type Failure struct {
	RunID      string
	Mode       string
	StatusCode int
	Code       string
	Message    string
}

func (f Failure) subject() string {
	return fmt.Sprintf("Template %s run failed (%d)", f.Mode, f.StatusCode)
}

func (f Failure) body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", f.RunID)
	fmt.Fprintf(&b, "Mode: %s\n", f.Mode)
	fmt.Fprintf(&b, "Status: %d\n", f.StatusCode)
	if f.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", f.Code)
	}
	fmt.Fprintf(&b, "Error: %s\n", f.Message)
	return b.String()
}

// Notifier delivers failure summaries over SNS and/or SES. Either channel may
// be nil. Delivery errors are logged and never returned to the run.
type Notifier struct {
	sns      SNSService
	ses      SESService
	topicARN string
	from     string
	to       []string
	logger   logger.Logger
}

func NewNotifier(cfg config.NotificationConfig, snsClient SNSService, sesClient SESService, log logger.Logger) *Notifier {
	return &Notifier{
		sns:      snsClient,
		ses:      sesClient,
		topicARN: cfg.SNS.TopicARN,
		from:     cfg.SES.From,
		to:       cfg.SES.To,
		logger:   log.Named("notify"),
	}
}

// New builds AWS clients for the enabled channels. It returns nil when no
// channel is enabled.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	if !cfg.SNS.Enabled && !cfg.SES.Enabled {
		return nil, nil
	}

	var (
		snsClient SNSService
		sesClient SESService
	)
	if cfg.SNS.Enabled {
		c, err := awsclients.NewSNSClient(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("create SNS client: %w", err)
		}
		snsClient = c
	}
	if cfg.SES.Enabled {
		c, err := awsclients.NewSESClient(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("create SES client: %w", err)
		}
		sesClient = c
	}
	return NewNotifier(cfg, snsClient, sesClient, log), nil
}

// NotifyFailure is safe to call on a nil Notifier.
func (n *Notifier) NotifyFailure(ctx context.Context, f Failure) {
	if n == nil {
		return
	}

	if n.sns != nil && n.topicARN != "" {
		_, err := n.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(n.topicARN),
			Subject:  aws.String(f.subject()),
			Message:  aws.String(f.body()),
		})
		if err != nil {
			n.logger.Error("SNS publish failed", map[string]interface{}{
				"runId": f.RunID,
				"error": err.Error(),
			})
		}
	}

	if n.ses != nil && n.from != "" && len(n.to) > 0 {
		_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
			Destination: &types.Destination{ToAddresses: n.to},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(f.subject())},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(f.body())},
				},
			},
			Source: aws.String(n.from),
		})
		if err != nil {
			n.logger.Error("SES send failed", map[string]interface{}{
				"runId": f.RunID,
				"error": err.Error(),
			})
		}
	}
}
