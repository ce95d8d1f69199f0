// Package notify delivers customer emails. Messages are handed to a mail
// queue consumed by the mailer; delivery itself happens outside this service.
package notify

import (
	"context"
	"log"
	"strings"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type Message struct {
	From        string       `json:"from,omitempty"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// LogSender writes messages to the log instead of delivering them. It is used
// when no mail queue is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	log.Printf("[NOTIFY] [INFO] to=%s subject=%q attachments=[%s]", msg.To, msg.Subject, strings.Join(names, ","))
	return nil
}
