package emailsvc

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/trezcool/bitacora/core"
)

type smtpService struct {
	dialer     *mail.Dialer
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

// NewSMTPService sends emails through the SMTP relay in conf.SMTP, with mandatory STARTTLS.
func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	d := mail.NewDialer(conf.SMTP.Host, conf.SMTP.Port, conf.SMTP.User, conf.SMTP.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: conf.SMTP.Host}

	from := conf.DefaultFromEmail()
	return &smtpService{
		dialer:     d,
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				if err := svc.dialer.DialAndSend(svc.prepare(*msg)); err != nil {
					svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
				}
			}
		}()
	}
}

func (svc smtpService) prepare(msg core.EmailMessage) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", svc.from)
	m.SetHeader("To", joinList(msg.To, m)...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", joinList(msg.Cc, m)...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", joinList(msg.Bcc, m)...)
	}
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)

	m.SetBody("text/plain", msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternative("text/html", msg.HTMLContent)
	}

	for _, at := range msg.Attachments {
		content := at.Content.String() // base64 encoded by EmailMessage.Attach
		m.Attach(at.Filename,
			mail.SetHeader(map[string][]string{"Content-Type": {at.ContentType}}),
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, base64.NewDecoder(base64.StdEncoding, strings.NewReader(content)))
				return err
			}),
		)
	}
	return m
}

func joinList(addrs []netmail.Address, m *mail.Message) []string {
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, m.FormatAddress(a.Address, a.Name))
	}
	return list
}
