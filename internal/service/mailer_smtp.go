package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/go-gomail/gomail"
	"github.com/nextest/portal-auth/internal/config"
)

const defaultSMTPSendTimeout = 10 * time.Second

// SMTPMailer delivers codes over SMTP. Every network operation of a send is
// bounded by one deadline, so a stalled server cannot hold the caller or
// leave work running after SendLoginCode returns.
type SMTPMailer struct {
	host     string
	port     int
	user     string
	pass     string
	from     string
	tls      *tls.Config
	implicit bool
	timeout  time.Duration
}

func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		from:     cfg.SMTPFrom,
		tls:      &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12},
		implicit: cfg.SMTPPort == 465,
		timeout:  defaultSMTPSendTimeout,
	}
}

func (m *SMTPMailer) Transport() string { return "smtp" }

func (m *SMTPMailer) SendLoginCode(ctx context.Context, msg LoginCodeMessage) error {
	body, err := RenderLoginCodeBody(msg)
	if err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", LoginCodeSubject)
	gm.SetBody("text/html", body)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := m.send(ctx, gm); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("send login code: %w", ctxErr)
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("send login code: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("send login code: %w", err)
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, gm *gomail.Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(m.host, strconv.Itoa(m.port)))
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if m.implicit {
		conn = tls.Client(conn, m.tls)
	}
	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if !m.implicit {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tls); err != nil {
				return err
			}
		}
	}
	if m.user != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.user, m.pass, m.host)); err != nil {
				return err
			}
		}
	}

	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
	if err := gomail.Send(sender, gm); err != nil {
		return err
	}
	return c.Quit()
}
