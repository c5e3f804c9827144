package core_test

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bitacora/core"
)

var recipient = mail.Address{Name: "Ana", Address: "ana@test.test"}

type errorLogger struct {
	errors []string
}

func (l *errorLogger) Debug(string, ...interface{})       {}
func (l *errorLogger) Info(string, ...interface{})        {}
func (l *errorLogger) Warn(string, ...interface{})        {}
func (l *errorLogger) Error(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }
func (l *errorLogger) Fatal(string, ...interface{})       {}

func TestEmailMessage_Render(t *testing.T) {
	fsys := fstest.MapFS{
		"email/_base.txt":    {Data: []byte("{{template \"content\" .}}\n--\n{{.FrontendBaseURL}}")},
		"email/_base.gohtml": {Data: []byte("<p>{{template \"content\" .}}</p>")},
		"email/hello.txt":    {Data: []byte("{{define \"content\"}}Hi {{.Data.Name}}{{end}}")},
		"email/hello.gohtml": {Data: []byte("{{define \"content\"}}Hi {{.Data.Name}}{{end}}")},
		"email/plain.txt":    {Data: []byte("{{define \"content\"}}Only text{{end}}")},
		"email/broken.txt":   {Data: []byte("{{define \"content\"}}{{.Data.Name}{{end}}")},
		"email/README.md":    {Data: []byte("ignored")},
	}
	logger := new(errorLogger)
	core.ParseEmailTemplates(fsys, "email", true, logger)
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "broken.txt")

	const baseURL = "http://bitacora.test"
	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantText string
		wantHTML string
		wantErr  bool
	}{
		{
			name:     "both flavors",
			msg:      *core.NewTemplateEmail(recipient, "hi", "hello", map[string]string{"Name": "Ana"}, baseURL),
			wantText: "Hi Ana\n--\n" + baseURL,
			wantHTML: "<p>Hi Ana</p>",
		},
		{
			name:     "text only",
			msg:      *core.NewTemplateEmail(recipient, "hi", "plain", nil, baseURL),
			wantText: "Only text\n--\n" + baseURL,
		},
		{
			name: "body wins over text template",
			msg: core.EmailMessage{
				BodyStr:      "Plain body",
				TemplateName: "hello",
				TemplateData: map[string]string{"Name": "Ana"},
			},
			wantText: "Plain body",
			wantHTML: "<p>Hi Ana</p>",
		},
		{
			name: "unknown template",
			msg:  *core.NewTemplateEmail(recipient, "hi", "broken", nil, baseURL),
		},
		{
			name:    "missing key",
			msg:     *core.NewTemplateEmail(recipient, "hi", "hello", map[string]string{}, baseURL),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, msg.TextContent)
			assert.Equal(t, tt.wantHTML, msg.HTMLContent)
			assert.Equal(t, tt.wantText != "" || tt.wantHTML != "", msg.HasContent())
		})
	}
}

func TestEmailMessage_Attach(t *testing.T) {
	content := "%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"
	var msg core.EmailMessage
	require.NoError(t, msg.Attach(strings.NewReader(content), "informe.pdf"))
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "datos.csv", "text/csv"))

	require.True(t, msg.HasAttachments())
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(content)), msg.Attachments[0].Content.String())
	assert.Equal(t, "text/csv", msg.Attachments[1].ContentType)
	assert.Equal(t, "datos.csv", msg.Attachments[1].Filename)
}
