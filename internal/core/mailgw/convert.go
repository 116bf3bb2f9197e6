package mailgw

import (
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/radiogate/radiogate/internal/core/forms"
)

// FormMIMEType marks a mail part carrying an embedded relay form. Mail
// from another gateway attaches the form payload under this type and
// the content is used verbatim instead of being synthesized.
const FormMIMEType = "application/x-radiogate-form"

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// CleanDisplayName strips the characters that would corrupt a mail
// header when the name is embedded: angle brackets and quotes
func CleanDisplayName(name string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "", `"`, "").Replace(name))
}

// htmlToText reduces an HTML body to plain text well enough for a
// radio form: tags dropped, entities decoded
func htmlToText(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagPattern.ReplaceAllString(s, "")))
}

// parsedMail is the gateway's view of one retrieved message
type parsedMail struct {
	// From is the bare sender address
	From string
	// FromName is the cleaned sender display name
	FromName string
	// To is the first recipient address, percent-routing intact
	To      string
	Subject string
	// Body is the chosen text body
	Body string
	// EmbeddedForm is non-nil when a part carried FormMIMEType
	EmbeddedForm *forms.Form
}

// parseMail picks the message apart: the embedded form part wins, then
// the first text/plain part, then text/html reduced to text
func parseMail(raw []byte) (*parsedMail, error) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return nil, errors.Wrap(err, "malformed message")
	}

	out := &parsedMail{
		Subject: msg.Header.Get("Subject"),
	}

	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		out.From = addr.Address
		out.FromName = CleanDisplayName(addr.Name)
	} else {
		out.From = strings.TrimSpace(msg.Header.Get("From"))
	}
	if addrs, err := msg.Header.AddressList("To"); err == nil && len(addrs) > 0 {
		out.To = addrs[0].Address
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading body")
		}
		if strings.Contains(mediaType, "html") {
			out.Body = htmlToText(string(body))
		} else {
			out.Body = strings.TrimSpace(string(body))
		}
		return out, nil
	}

	var htmlBody string
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading part")
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		data, err := io.ReadAll(part)
		if err != nil {
			continue
		}
		if strings.EqualFold(part.Header.Get("Content-Transfer-Encoding"), "base64") {
			if decoded, err := base64.StdEncoding.DecodeString(
				strings.TrimSpace(string(data))); err == nil {
				data = decoded
			}
		}

		switch {
		case partType == FormMIMEType:
			var form forms.Form
			if err := yaml.Unmarshal(data, &form); err == nil {
				out.EmbeddedForm = &form
				return out, nil
			}
		case partType == "text/plain" && out.Body == "":
			out.Body = strings.TrimSpace(string(data))
		case partType == "text/html" && htmlBody == "":
			htmlBody = string(data)
		}
	}

	if out.Body == "" && htmlBody != "" {
		out.Body = htmlToText(htmlBody)
	}
	return out, nil
}

// FormFromMail converts one retrieved mail message into a relay form
// and reports the bare internet sender address for access checks. The
// destination station comes from the recipient address: the
// percent-routing hint when present, otherwise the local part. The
// gateway hop is stamped into the route so the form can never be
// mailed back out.
func FormFromMail(raw []byte) (*forms.Form, string, error) {
	parsed, err := parseMail(raw)
	if err != nil {
		return nil, "", err
	}

	if parsed.EmbeddedForm != nil {
		form := parsed.EmbeddedForm
		if !form.RoutedThroughGateway() {
			form.AppendHop(forms.GatewayHop)
		}
		return form, parsed.From, nil
	}

	station := destinationStation(parsed.To)
	if station == "" {
		return nil, "", errors.Errorf("cannot derive destination station from %q", parsed.To)
	}

	from := parsed.From
	if parsed.FromName != "" {
		from = parsed.FromName + " " + parsed.From
	}

	form := &forms.Form{
		To:        station,
		From:      from,
		Subject:   parsed.Subject,
		Message:   parsed.Body,
		CreatedAt: time.Now(),
	}
	form.AppendHop(forms.GatewayHop)
	return form, parsed.From, nil
}

// ChatTextFromMail extracts the broadcastable text of a message
func ChatTextFromMail(raw []byte) (string, error) {
	parsed, err := parseMail(raw)
	if err != nil {
		return "", err
	}
	if parsed.EmbeddedForm != nil {
		return parsed.EmbeddedForm.Message, nil
	}
	return parsed.Body, nil
}

// destinationStation derives the target callsign from the gateway's
// recipient address: "KD1ABC%user@host" routes to KD1ABC, plain
// "kd1abc@gateway" routes to KD1ABC
func destinationStation(to string) string {
	if to == "" {
		return ""
	}
	hint, underlying := forms.SplitRelayAddress(to)
	if hint != "" {
		return strings.ToUpper(hint)
	}
	local, _, ok := strings.Cut(underlying, "@")
	if !ok || local == "" {
		return ""
	}
	return strings.ToUpper(local)
}
