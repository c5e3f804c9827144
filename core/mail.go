package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/gabriel-vasile/mimetype"
)

const (
	textTemplateExt = ".txt"
	htmlTemplateExt = ".gohtml"
)

// emailTemplates holds the parsed email templates, replaced as a whole by ParseEmailTemplates.
var emailTemplates templateRegistry

type (
	// emailTemplate is a named template in its plain text and HTML flavors; either may be missing.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	templateRegistry struct {
		mu  sync.RWMutex
		set map[string]emailTemplate
	}

	executor interface {
		Execute(w io.Writer, data interface{}) error
	}

	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text, takes precedence over the text template
		Attachments []Attachment

		TemplateName string // without extension
		TemplateData interface{}
		TextContent  string
		HTMLContent  string

		FrontendBaseURL string
	}

	// ContextData is what email templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (r *templateRegistry) lookup(name string) (emailTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.set[name]
	return tmpl, ok
}

func (r *templateRegistry) replace(set map[string]emailTemplate) {
	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
}

// NewTemplateEmail addresses the `name` template, rendered with `data`, to a single recipient.
func NewTemplateEmail(to mail.Address, subject, name string, data interface{}, baseURL string) *EmailMessage {
	return &EmailMessage{
		To:              []mail.Address{to},
		Subject:         subject,
		TemplateName:    name,
		TemplateData:    data,
		FrontendBaseURL: baseURL,
	}
}

func execute(tmpl executor, data ContextData) (string, error) {
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return "", err
	}
	return buff.String(), nil
}

// Render fills TextContent & HTMLContent. A template name without parsed templates renders nothing.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	tmpl, ok := emailTemplates.lookup(m.TemplateName)
	if !ok {
		return nil
	}

	data := ContextData{FrontendBaseURL: m.FrontendBaseURL, Data: m.TemplateData}
	var err error
	if m.BodyStr == "" && tmpl.text != nil {
		if m.TextContent, err = execute(tmpl.text, data); err != nil {
			return err
		}
	}
	if tmpl.html != nil {
		if m.HTMLContent, err = execute(tmpl.html, data); err != nil {
			return err
		}
	}
	return nil
}

// Attach reads `r` fully as a base64 encoded attachment.
// The content type is sniffed unless given in `ct`.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	at := Attachment{Filename: filename}
	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = mimetype.Detect(content).String()
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(content)))
	base64.StdEncoding.Encode(encoded, content)
	at.Content = bytes.NewBuffer(encoded)

	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates parses email templates found under `dir` in `fsys`.
// Files starting with "_" are layouts shared by every template of the same extension.
// Templates failing to parse are logged and skipped.
func ParseEmailTemplates(fsys fs.FS, dir string, strict bool, logger Logger) {
	fps, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
		return
	}

	set := make(map[string]emailTemplate)
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		layout := path.Join(dir, "_base"+ext)
		tmpl := set[name]

		switch ext {
		case textTemplateExt:
			t, err := texttmpl.ParseFS(fsys, layout, fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
				continue
			}
			if strict {
				t = t.Option("missingkey=error")
			}
			tmpl.text = t
		case htmlTemplateExt:
			t, err := htmltmpl.ParseFS(fsys, layout, fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
				continue
			}
			if strict {
				t = t.Option("missingkey=error")
			}
			tmpl.html = t
		default:
			continue
		}
		set[name] = tmpl
	}

	emailTemplates.replace(set)
}
