package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailSink mails notifications through an SMTP relay.
type EmailSink struct {
	sender mailSender
	from   string
	to     []string
}

func NewEmailSink(cfg EmailConfig) *EmailSink {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	// implicit TLS on 465, STARTTLS otherwise
	dialer.SSL = cfg.Port == 465
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailSink{sender: dialer, from: from, to: cfg.To}
}

func (s *EmailSink) Notify(_ context.Context, n Notification) error {
	if len(s.to) == 0 {
		return nil
	}

	message := gomail.NewMessage()
	message.SetHeader("From", s.from)
	message.SetHeader("To", s.to...)
	message.SetHeader("Subject", fmt.Sprintf("[wallet-pool] %s", n.Title))
	message.SetBody("text/plain", n.Text())
	message.AddAlternative("text/html", "<pre>"+strings.ReplaceAll(n.HTML(), "\n", "<br>")+"</pre>")

	if err := s.sender.DialAndSend(message); err != nil {
		return fmt.Errorf("could not send email: %w", err)
	}
	return nil
}
