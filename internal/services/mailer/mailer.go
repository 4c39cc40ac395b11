// Package mailer delivers digest emails over SMTP. Each recipient gets an
// individual message so one bad address never blocks the rest of a topic's
// subscribers; per-recipient outcomes are reported back to the caller.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"digest/internal/config"
	"digest/internal/services"
)

const defaultTimeout = 30 * time.Second

// Failure records a single recipient that could not be delivered to.
type Failure struct {
	Address string
	Reason  string
}

// Delivery summarizes the outcome of sending one digest to its recipients.
type Delivery struct {
	Delivered []string
	Failed    []Failure
}

// Mailer sends a rendered digest to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, msg Message) (Delivery, error)
}

// Message is a digest email before per-recipient rendering.
type Message struct {
	Topic      string
	Body       string
	Recipients []string
}

// Subject builds the digest subject line for a topic.
func Subject(topicKey string) string {
	return "Weekly Update: " + topicKey
}

// SMTPMailer delivers messages through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTP
}

// New constructs an SMTP-backed mailer from configuration.
func New(cfg config.SMTP) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers the message to each recipient individually. It returns an
// error only when the relay itself is unreachable; per-recipient rejections
// are reported through the Delivery result instead.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (Delivery, error) {
	var delivery Delivery
	if len(msg.Recipients) == 0 {
		return delivery, services.Wrap(services.ErrValidation, "mailer", "send", "no recipients", nil)
	}
	if strings.TrimSpace(m.cfg.Host) == "" {
		return delivery, services.Wrap(services.ErrConfiguration, "mailer", "send", "smtp host required", nil)
	}

	client, err := m.connect(ctx)
	if err != nil {
		return delivery, services.Wrap(services.ErrTransient, "mailer", "send", "connect relay", err)
	}
	defer func() {
		_ = client.Quit()
	}()

	subject := Subject(msg.Topic)
	for _, recipient := range msg.Recipients {
		if err := ctx.Err(); err != nil {
			return delivery, err
		}
		if err := m.sendOne(client, recipient, subject, msg.Body); err != nil {
			delivery.Failed = append(delivery.Failed, Failure{
				Address: recipient,
				Reason:  err.Error(),
			})
			// The transaction may be mid-state after a rejection; reset
			// before the next recipient.
			_ = client.Reset()
			continue
		}
		delivery.Delivered = append(delivery.Delivered, recipient)
	}
	return delivery, nil
}

func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	timeout := defaultTimeout
	if m.cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(m.cfg.TimeoutSeconds) * time.Second
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if m.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("relay %s does not support STARTTLS", m.cfg.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return client, nil
}

func (m *SMTPMailer) sendOne(client *smtp.Client, recipient, subject, body string) error {
	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := writer.Write(Render(m.cfg.FromAddress, recipient, subject, body)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}

// Render assembles the RFC 5322 message bytes for one recipient.
func Render(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
