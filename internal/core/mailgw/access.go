// Package mailgw bridges internet email and the radio relay: an
// inbound mailbox poller, an outbound mail sender and the ordered
// access-rule predicate both directions consult.
package mailgw

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Permission is the direction an access rule grants
type Permission string

const (
	// PermIncoming allows internet -> radio forwarding
	PermIncoming Permission = "incoming"
	// PermOutgoing allows radio -> internet forwarding
	PermOutgoing Permission = "outgoing"
	// PermBoth allows both directions
	PermBoth Permission = "both"
)

// ParsePermission maps a config string onto a Permission
func ParsePermission(s string) (Permission, error) {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case PermIncoming:
		return PermIncoming, nil
	case PermOutgoing:
		return PermOutgoing, nil
	case PermBoth:
		return PermBoth, nil
	}
	return "", errors.Errorf("unknown permission %q", s)
}

// Rule is one ordered access-control entry. Station is an exact
// callsign or the wildcard "*"; AddressPattern is a regular expression
// matched against the internet mail address.
type Rule struct {
	Station        string
	Permission     Permission
	AddressPattern string

	re *regexp.Regexp
}

// CompileRules validates every rule and compiles its address pattern.
// Rule order is preserved; evaluation order is rule order.
func CompileRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		perm, err := ParsePermission(string(r.Permission))
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d", i)
		}
		re, err := regexp.Compile(r.AddressPattern)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: bad address pattern", i)
		}
		r.Permission = perm
		r.re = re
		out[i] = r
	}
	return out, nil
}

func (r Rule) matches(station, address string) bool {
	if r.Station != "*" && !strings.EqualFold(r.Station, station) {
		return false
	}
	re := r.re
	if re == nil {
		var err error
		re, err = regexp.Compile(r.AddressPattern)
		if err != nil {
			return false
		}
	}
	return re.MatchString(address)
}

// Allowed evaluates rules in order: the first rule whose station and
// address both match decides the outcome, true iff its permission is
// in perms. No matching rule denies.
func Allowed(rules []Rule, station, address string, perms ...Permission) bool {
	for _, r := range rules {
		if !r.matches(station, address) {
			continue
		}
		for _, p := range perms {
			if r.Permission == p {
				return true
			}
		}
		return false
	}
	return false
}

// AllowedIncoming reports whether mail from address may be forwarded
// automatically to station
func AllowedIncoming(rules []Rule, station, address string) bool {
	return Allowed(rules, station, address, PermBoth, PermIncoming)
}

// AllowedOutgoing reports whether a form from station may be mailed
// automatically to address
func AllowedOutgoing(rules []Rule, station, address string) bool {
	return Allowed(rules, station, address, PermBoth, PermOutgoing)
}
