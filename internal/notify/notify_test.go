package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func testRecord() domain.PaymentRecord {
	return domain.PaymentRecord{
		Name:      "Asha <b>Rao</b>",
		Phone:     "9876543210",
		Amount:    "5000",
		UTR:       "123456789012",
		Email:     "asha@example.com",
		UserID:    "u1",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testNotifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		Enabled:        true,
		From:           "portal@example.com",
		To:             []string{"ops@example.com"},
		TimeoutSeconds: 5,
	}
}

func TestRender(t *testing.T) {
	n, err := newNotifier(&fakeSES{}, testNotifyConfig())
	require.NoError(t, err)

	subject, body, err := n.Render(testRecord())
	require.NoError(t, err)
	assert.Equal(t, "New payment: ₹5000 from Asha <b>Rao</b>", subject)
	assert.Contains(t, body, "Asha &lt;b&gt;Rao&lt;/b&gt;")
	assert.Contains(t, body, "123456789012")
	assert.Contains(t, body, "₹5000")
	assert.Contains(t, body, "Fri, 02 Jan 2026 03:04:05 UTC")
}

func TestSend(t *testing.T) {
	ses := &fakeSES{}
	n, err := newNotifier(ses, testNotifyConfig())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), testRecord()))
	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, "portal@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(in.Content.Simple.Body.Html.Data), "9876543210")
}

func TestHookSwallowsErrors(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	n, err := newNotifier(ses, testNotifyConfig())
	require.NoError(t, err)

	assert.NotPanics(t, func() { n.Hook()(context.Background(), testRecord()) })
	assert.Len(t, ses.inputs, 1)
}

func TestNewNotifier_Errors(t *testing.T) {
	cfg := testNotifyConfig()
	cfg.To = nil
	_, err := newNotifier(&fakeSES{}, cfg)
	assert.ErrorIs(t, err, ErrNoRecipients)

	cfg = testNotifyConfig()
	cfg.TemplatePath = filepath.Join(t.TempDir(), "missing.liquid")
	_, err = newNotifier(&fakeSES{}, cfg)
	assert.Error(t, err)
}

func TestCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.liquid")
	require.NoError(t, os.WriteFile(path, []byte("UTR {{ utr }} for {{ amount | rupees }}"), 0o600))

	cfg := testNotifyConfig()
	cfg.TemplatePath = path
	n, err := newNotifier(&fakeSES{}, cfg)
	require.NoError(t, err)

	_, body, err := n.Render(testRecord())
	require.NoError(t, err)
	assert.Equal(t, "UTR 123456789012 for ₹5000", body)
}
