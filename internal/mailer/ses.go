package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESMailer delivers mail through AWS SES v2.
type SESMailer struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
}

func NewSESMailer(cfg aws.Config, fromEmail, fromName string) (*SESMailer, error) {
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &SESMailer{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, &MailError{Code: "invalid_recipient", Message: "recipient address is empty", Bounce: true}
	}

	html, text := renderBodies(msg)

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.fromAddress()),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html)},
					Text: &types.Content{Data: aws.String(text)},
				},
			},
		},
	})
	if err != nil {
		return nil, classifySESError(err)
	}

	result := &SendResult{ProviderResponse: "accepted"}
	if out.MessageId != nil {
		result.MessageID = *out.MessageId
	}
	return result, nil
}

func (m *SESMailer) fromAddress() string {
	if strings.TrimSpace(m.fromName) == "" {
		return m.fromEmail
	}
	return fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
}

// renderBodies appends the attachment access links to both body variants.
// Documents travel as time-limited URLs, not inline content.
func renderBodies(msg Message) (html, text string) {
	html = msg.HTML
	text = msg.Text

	if len(msg.Attachments) == 0 {
		return html, text
	}

	var htmlLinks, textLinks strings.Builder
	htmlLinks.WriteString("<ul>")
	for _, a := range msg.Attachments {
		fmt.Fprintf(&htmlLinks, `<li><a href=%q>%s</a></li>`, a.URL, a.FileName)
		fmt.Fprintf(&textLinks, "- %s: %s\n", a.FileName, a.URL)
	}
	htmlLinks.WriteString("</ul>")

	html += htmlLinks.String()
	text += "\n" + textLinks.String()
	return html, text
}

func classifySESError(err error) error {
	var (
		tooMany       *types.TooManyRequestsException
		limitExceeded *types.LimitExceededException
		sendingPaused *types.SendingPausedException
		rejected      *types.MessageRejected
		notVerified   *types.MailFromDomainNotVerifiedException
		badRequest    *types.BadRequestException
	)

	switch {
	case errors.As(err, &tooMany):
		return &MailError{Code: "too_many_requests", Message: "provider throttled the send", Transient: true, Cause: err}
	case errors.As(err, &limitExceeded):
		return &MailError{Code: "limit_exceeded", Message: "provider sending limit reached", Transient: true, Cause: err}
	case errors.As(err, &sendingPaused):
		return &MailError{Code: "sending_paused", Message: "account sending is paused", Transient: true, Cause: err}
	case errors.As(err, &rejected):
		return &MailError{Code: "message_rejected", Message: "provider rejected the message", Bounce: true, Cause: err}
	case errors.As(err, &notVerified):
		return &MailError{Code: "sender_not_verified", Message: "sender domain is not verified", Cause: err}
	case errors.As(err, &badRequest):
		return &MailError{Code: "bad_request", Message: "provider rejected the request", Cause: err}
	default:
		return &MailError{Code: "send_failed", Message: "provider call failed", Transient: true, Cause: err}
	}
}
