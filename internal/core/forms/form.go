// Package forms implements the structured message unit the relay
// stores and forwards. A form is a small field-based document persisted
// as one YAML file, addressed to a destination station or email address
// and carrying the ordered list of hops it has traversed.
package forms

import (
	"strings"
	"time"
)

// GatewayHop is the routing-path marker stamped by the email gateway.
// A form whose route already contains it has crossed the internet once
// and must never be sent back out through the gateway.
const GatewayHop = "EMAIL"

// Form is one relayable structured message
type Form struct {
	To      string `yaml:"to"`
	From    string `yaml:"from"`
	Subject string `yaml:"subject,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Route lists the hops already traversed, oldest first
	Route []string `yaml:"route,omitempty"`

	// Fields holds any additional named form fields
	Fields map[string]string `yaml:"fields,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

// Destination returns the declared target of the form: a station
// callsign or an email address. Empty when the form is unaddressed.
func (f *Form) Destination() string {
	return strings.TrimSpace(f.To)
}

// WantsMail reports whether the destination is an internet email
// address rather than a station callsign
func (f *Form) WantsMail() bool {
	dest := f.Destination()
	return strings.Contains(dest, "@")
}

// Field returns a named field, checking the fixed fields first
func (f *Form) Field(name string) string {
	switch strings.ToLower(name) {
	case "to":
		return f.To
	case "from":
		return f.From
	case "subject":
		return f.Subject
	case "message":
		return f.Message
	}
	return f.Fields[name]
}

// SetField sets a named field, mapping the well-known names onto the
// fixed fields
func (f *Form) SetField(name, value string) {
	switch strings.ToLower(name) {
	case "to":
		f.To = value
	case "from":
		f.From = value
	case "subject":
		f.Subject = value
	case "message":
		f.Message = value
	default:
		if f.Fields == nil {
			f.Fields = make(map[string]string)
		}
		f.Fields[name] = value
	}
}

// AppendHop records one more traversed hop at the end of the route
func (f *Form) AppendHop(hop string) {
	hop = strings.TrimSpace(hop)
	if hop == "" {
		return
	}
	f.Route = append(f.Route, hop)
}

// RoutedThroughGateway reports whether the form has already passed
// through the email gateway
func (f *Form) RoutedThroughGateway() bool {
	for _, hop := range f.Route {
		if strings.EqualFold(hop, GatewayHop) {
			return true
		}
	}
	return false
}

// SplitRelayAddress splits a percent-routed address of the form
// "hint%user@host" into its routing hint and the underlying address.
// Addresses without a percent sign return an empty hint unchanged.
func SplitRelayAddress(addr string) (hint, underlying string) {
	at := strings.Index(addr, "@")
	pct := strings.Index(addr, "%")
	if pct < 0 || (at >= 0 && pct > at) {
		return "", addr
	}
	return addr[:pct], addr[pct+1:]
}
