// Package notification delivers issued statements to customers by email.
package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/statement"
)

// Config holds the outgoing email settings.
type Config struct {
	Provider    string // "smtp" or "sendgrid"
	Host        string
	Port        int
	Username    string
	Password    string
	Encryption  string // "none", "ssl", "tls"
	FromAddress string
	FromName    string
	APIKey      string // sendgrid
}

// Enabled reports whether a provider is configured.
func (c Config) Enabled() bool {
	return c.Provider != "" && c.FromAddress != ""
}

// Service sends statement emails.
type Service struct {
	cfg Config
	log *zap.Logger
}

func NewService(cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, log: log}
}

// Email is a rendered statement message.
type Email struct {
	To         string
	Subject    string
	Body       string
	Attachment []byte
	Filename   string
}

// ComposeStatement renders stmt into an email for to, with the PDF attached.
func ComposeStatement(to string, stmt *statement.Statement) (Email, error) {
	var body bytes.Buffer
	if err := statement.Render(&body, stmt); err != nil {
		return Email{}, fmt.Errorf("render statement: %w", err)
	}
	pdf, err := statement.BuildPDF(stmt)
	if err != nil {
		return Email{}, fmt.Errorf("build statement pdf: %w", err)
	}
	return Email{
		To:         to,
		Subject:    fmt.Sprintf("Electricity bill %s - %s", stmt.Reading.Month, stmt.Customer.Code),
		Body:       body.String(),
		Attachment: pdf,
		Filename:   fmt.Sprintf("statement-%s.pdf", stmt.ID),
	}, nil
}

// SendStatement emails stmt to the given address.
func (s *Service) SendStatement(ctx context.Context, to string, stmt *statement.Statement) error {
	if !s.cfg.Enabled() {
		return errors.New("email not configured")
	}
	msg, err := ComposeStatement(to, stmt)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch s.cfg.Provider {
	case "smtp", "gmail":
		err = s.sendSMTP(msg)
	case "sendgrid":
		err = s.sendSendgrid(msg)
	default:
		return fmt.Errorf("unknown provider: %s", s.cfg.Provider)
	}
	if err != nil {
		s.log.Warn("statement email failed", zap.String("statement", stmt.ID), zap.String("provider", s.cfg.Provider), zap.Error(err))
		return err
	}
	s.log.Info("statement emailed", zap.String("statement", stmt.ID), zap.String("provider", s.cfg.Provider))
	return nil
}

// buildMIME renders msg as a multipart message with a text body and a PDF part.
func buildMIME(from string, msg Email) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}

	if len(msg.Attachment) > 0 {
		att, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/pdf"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", msg.Filename)},
		})
		if err != nil {
			return nil, err
		}
		if _, err := att.Write([]byte(base64.StdEncoding.EncodeToString(msg.Attachment))); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) sendSMTP(msg Email) error {
	cfg := s.cfg
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	body, err := buildMIME(cfg.FromAddress, msg)
	if err != nil {
		return err
	}

	var c *smtp.Client
	switch cfg.Encryption {
	case "ssl":
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return err
		}
		c, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return err
		}
	case "tls":
		c, err = smtp.Dial(addr)
		if err != nil {
			return err
		}
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				c.Close()
				return err
			}
		}
	default:
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		return smtp.SendMail(addr, auth, cfg.FromAddress, []string{msg.To}, body)
	}
	defer c.Quit()

	if cfg.Username != "" && cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.FromAddress); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}

func buildSendgridMessage(cfg Config, msg Email) *mail.SGMailV3 {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "<pre>"+html.EscapeString(msg.Body)+"</pre>")
	if len(msg.Attachment) > 0 {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(msg.Attachment))
		a.SetType("application/pdf")
		a.SetFilename(msg.Filename)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}

func (s *Service) sendSendgrid(msg Email) error {
	client := sendgrid.NewSendClient(s.cfg.APIKey)
	resp, err := client.Send(buildSendgridMessage(s.cfg, msg))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
