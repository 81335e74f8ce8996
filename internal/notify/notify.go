// Package notify emails operators when an investment payment is submitted so
// it can be verified against the bank statement.
package notify

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/service/investment"
)

//go:embed templates/payment_submitted.liquid
var defaultTemplate string

const defaultSubject = "New payment: {{ amount | rupees }} from {{ name }}"

// ErrNoRecipients is returned when notifications are enabled without any
// recipient addresses.
var ErrNoRecipients = errors.New("notify: no recipients configured")

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier renders and sends payment notifications.
type Notifier struct {
	client  sesAPI
	from    string
	to      []string
	timeout time.Duration
	subject *liquid.Template
	body    *liquid.Template
}

// New builds a Notifier backed by SES v2. Static credentials are used when
// configured; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.NotifyConfig) (*Notifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newNotifier(sesv2.NewFromConfig(awsCfg), cfg)
}

func newNotifier(client sesAPI, cfg config.NotifyConfig) (*Notifier, error) {
	if len(cfg.To) == 0 {
		return nil, ErrNoRecipients
	}

	body := defaultTemplate
	if cfg.TemplatePath != "" {
		raw, err := os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("reading notification template: %w", err)
		}
		body = string(raw)
	}

	engine := newEngine()
	subjectTpl, err := engine.ParseString(defaultSubject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	bodyTpl, err := engine.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parsing notification template: %w", err)
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client:  client,
		from:    cfg.From,
		to:      cfg.To,
		timeout: timeout,
		subject: subjectTpl,
		body:    bodyTpl,
	}, nil
}

func newEngine() *liquid.Engine {
	engine := liquid.NewEngine()

	// {{ amount | rupees }}
	engine.RegisterFilter("rupees", func(value interface{}) string {
		s := strings.TrimSpace(fmt.Sprintf("%v", value))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return "₹" + strconv.FormatFloat(f, 'f', -1, 64)
		}
		return "₹" + s
	})
	engine.RegisterFilter("escape", html.EscapeString)
	return engine
}

func bindings(rec domain.PaymentRecord) liquid.Bindings {
	submitted := rec.CreatedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	return liquid.Bindings{
		"name":         rec.Name,
		"email":        rec.Email,
		"phone":        rec.Phone,
		"amount":       rec.Amount,
		"utr":          rec.UTR,
		"user_id":      rec.UserID,
		"submitted_at": submitted.UTC().Format(time.RFC1123),
	}
}

// Render returns the subject and HTML body for rec.
func (n *Notifier) Render(rec domain.PaymentRecord) (string, string, error) {
	b := bindings(rec)
	subject, err := n.subject.RenderString(b)
	if err != nil {
		return "", "", fmt.Errorf("rendering subject: %w", err)
	}
	body, err := n.body.RenderString(b)
	if err != nil {
		return "", "", fmt.Errorf("rendering body: %w", err)
	}
	return subject, body, nil
}

// Send emails every configured recipient about rec.
func (n *Notifier) Send(ctx context.Context, rec domain.PaymentRecord) error {
	subject, body, err := n.Render(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: n.to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("kind"), Value: aws.String("payment_submitted")},
		},
	}

	out, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	logger.Info("notify: payment notification sent",
		"message_id", aws.ToString(out.MessageId),
		"email", rec.Email,
		"utr", rec.UTR)
	return nil
}

// Hook adapts the notifier to the submission workflow. Failures are logged
// and never affect the submission.
func (n *Notifier) Hook() investment.SubmittedHook {
	return func(ctx context.Context, rec domain.PaymentRecord) {
		if err := n.Send(ctx, rec); err != nil {
			logger.Error("notify: payment notification failed", "error", err, "utr", rec.UTR)
		}
	}
}
