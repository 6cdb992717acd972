package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/d60-Lab/bookstore/internal/config"
)

// Message 邮件内容
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer 发送邮件
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer 基于 gomail 的 SMTP 实现
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send gomail 不支持 context，超时由 Dispatcher 控制
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer 未配置 SMTP 时使用，仅记录日志
type LogMailer struct {
	logf func(msg Message)
}

func NewLogMailer(logf func(msg Message)) *LogMailer { return &LogMailer{logf: logf} }

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if m.logf != nil {
		m.logf(msg)
	}
	return nil
}

func orderConfirmationMessage(email, name string, orderID int64) Message {
	return Message{
		To:      email,
		Subject: fmt.Sprintf("Payment confirmed for order #%d", orderID),
		Body: fmt.Sprintf("Dear %s,\n\nYour order #%d has been paid successfully.\n"+
			"We will process and ship it as soon as possible.\n\n"+
			"Thank you for shopping at our bookstore.\n", displayName(name), orderID),
	}
}

func paymentFailureMessage(email, name string, orderID int64) Message {
	return Message{
		To:      email,
		Subject: fmt.Sprintf("Payment for order #%d failed", orderID),
		Body: fmt.Sprintf("Dear %s,\n\nThe payment for your order #%d did not go through.\n"+
			"Please try again or choose another payment method.\n\n"+
			"Contact us if the problem persists.\n", displayName(name), orderID),
	}
}

func displayName(name string) string {
	if name == "" {
		return "customer"
	}
	return name
}
