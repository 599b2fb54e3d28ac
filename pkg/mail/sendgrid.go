package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/buildmart/storefront/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridSender interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendgridDispatcher delivers messages through the SendGrid v3 API.
type SendgridDispatcher struct {
	client   sendgridSender
	from     string
	fromName string
	logg     *logger.Logger
}

// NewSendgridDispatcher builds a dispatcher for apiKey sending as from.
func NewSendgridDispatcher(apiKey, from, fromName string, logg *logger.Logger) (*SendgridDispatcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	if from == "" {
		return nil, fmt.Errorf("from address is empty")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &SendgridDispatcher{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
		logg:     logg,
	}, nil
}

// Send builds a SendGrid message and treats any 4xx/5xx as a failure.
func (d *SendgridDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(d.fromName, d.from),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Text,
		msg.HTML,
	)
	for _, a := range msg.Attachments {
		att := sgmail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	response, err := d.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}

	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"status":      response.StatusCode,
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	}), "mail sent")
	return nil
}

// LogDispatcher accepts every valid message and only logs it.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	size := 0
	for _, a := range msg.Attachments {
		size += len(a.Content)
	}
	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"recipient":        msg.To,
		"subject":          msg.Subject,
		"attachments":      len(msg.Attachments),
		"attachment_bytes": size,
	}), "mail transport disabled, message logged")
	return nil
}
