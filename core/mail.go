package core

import "net/mail"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // text/plain content
	}

	// EmailService sends messages asynchronously; implementations must not block the caller.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

func (msg EmailMessage) HasRecipients() bool {
	return len(msg.To) > 0 || len(msg.Cc) > 0
}

func (msg EmailMessage) HasContent() bool {
	return msg.BodyStr != ""
}
