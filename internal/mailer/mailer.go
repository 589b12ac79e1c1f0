package mailer

import "context"

// Mailer is the outbound mail delivery port.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// Attachment is a document resolved to a time-limited access URL. URLs are
// resolved just before send and never persisted with the queue entry.
type Attachment struct {
	FileName string
	URL      string
}

// Message is one consolidated mail to one recipient.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// SendResult stores provider call metadata for audit and persistence.
type SendResult struct {
	MessageID        string
	ProviderResponse string
}
