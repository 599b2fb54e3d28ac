// Package mail sends transactional messages with attachments.
package mail

import (
	"context"
	"errors"
	"strings"
)

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a fully formed outbound email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Dispatcher delivers a message. A nil error means the transport accepted it.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("recipient is empty")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("subject is empty")
	}
	for _, a := range m.Attachments {
		if a.Filename == "" || len(a.Content) == 0 {
			return errors.New("attachment requires a filename and content")
		}
	}
	return nil
}
