package mailgw

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/radiogate/radiogate/internal/core/forms"
)

func plainMail(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, to, subject, body))
}

func multipartMail(from, to, subject string, parts ...string) []byte {
	const boundary = "testboundary42"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, subject)
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
	for _, p := range parts {
		fmt.Fprintf(&b, "--%s\r\n%s\r\n", boundary, p)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func TestFormFromPlainMail(t *testing.T) {
	raw := plainMail(`"Some One" <someone@example.com>`, "kd1abc@gateway.example", "Checking in", "Hello")

	form, sender, err := FormFromMail(raw)
	require.NoError(t, err)

	assert.Equal(t, "someone@example.com", sender)
	assert.Equal(t, "KD1ABC", form.To)
	assert.Equal(t, "Some One someone@example.com", form.From)
	assert.Equal(t, "Checking in", form.Subject)
	assert.Equal(t, "Hello", form.Message)
	assert.True(t, form.RoutedThroughGateway(), "inbound mail must carry the gateway hop")
}

func TestFormFromHTMLMail(t *testing.T) {
	raw := []byte("From: someone@example.com\r\n" +
		"To: kd1abc@gateway.example\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<p>Hi &amp; hello</p>\r\n")

	form, _, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "Hi & hello", form.Message)
}

func TestMultipartPrefersPlainText(t *testing.T) {
	raw := multipartMail("someone@example.com", "kd1abc@gateway.example", "hi",
		"Content-Type: text/html\r\n\r\n<b>rich</b>",
		"Content-Type: text/plain\r\n\r\nplain wins")

	form, _, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain wins", form.Message)
}

func TestMultipartFallsBackToHTML(t *testing.T) {
	raw := multipartMail("someone@example.com", "kd1abc@gateway.example", "hi",
		"Content-Type: text/html\r\n\r\n<p>only html</p>")

	form, _, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "only html", form.Message)
}

func TestEmbeddedFormPartWinsVerbatim(t *testing.T) {
	orig := &forms.Form{
		To:      "KD1ABC",
		From:    "W2XYZ",
		Subject: "relayed",
		Message: "payload",
		Route:   []string{"W2XYZ"},
	}
	payload, err := yaml.Marshal(orig)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(payload)

	raw := multipartMail("gateway@other.example", "kd9zzz@gateway.example", "ignored",
		"Content-Type: text/plain\r\n\r\nouter text",
		"Content-Type: "+FormMIMEType+"\r\nContent-Transfer-Encoding: base64\r\n\r\n"+encoded)

	form, sender, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "gateway@other.example", sender)
	assert.Equal(t, "KD1ABC", form.To, "embedded form is used verbatim, not synthesized")
	assert.Equal(t, "payload", form.Message)
	assert.True(t, form.RoutedThroughGateway())
}

func TestEmbeddedFormKeepsExistingGatewayHop(t *testing.T) {
	orig := &forms.Form{
		To:    "KD1ABC",
		From:  "W2XYZ",
		Route: []string{"W2XYZ", forms.GatewayHop},
	}
	payload, err := yaml.Marshal(orig)
	require.NoError(t, err)

	raw := multipartMail("gateway@other.example", "kd9zzz@gateway.example", "x",
		"Content-Type: "+FormMIMEType+"\r\n\r\n"+string(payload))

	form, _, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"W2XYZ", forms.GatewayHop}, form.Route,
		"hop must not be stamped twice")
}

func TestDestinationFromPercentHint(t *testing.T) {
	raw := plainMail("someone@example.com", "w2xyz%box@gateway.example", "hi", "body")

	form, _, err := FormFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "W2XYZ", form.To)
}

func TestFormFromMailRejectsUnroutableRecipient(t *testing.T) {
	raw := []byte("From: someone@example.com\r\nSubject: hi\r\n\r\nbody\r\n")

	_, _, err := FormFromMail(raw)
	assert.Error(t, err)
}

func TestChatTextFromMail(t *testing.T) {
	raw := plainMail("someone@example.com", "chat@gateway.example", "hi", "net check at 1900")

	text, err := ChatTextFromMail(raw)
	require.NoError(t, err)
	assert.Equal(t, "net check at 1900", text)
}

func TestCleanDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Some One", want: "Some One"},
		{in: `"Quoted" <sneaky>`, want: "Quoted sneaky"},
		{in: "  padded  ", want: "padded"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanDisplayName(tt.in), "input %q", tt.in)
	}
}
