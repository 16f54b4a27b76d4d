package email

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// blockedDomains lists disposable-mail domains that are never accepted.
var blockedDomains = map[string]struct{}{
	"tempmail.org":      {},
	"10minutemail.com":  {},
	"guerrillamail.com": {},
}

// Address is a validated, normalized email address.
type Address struct {
	value string
}

// NewAddress normalizes raw (trim, lowercase) and validates its shape and
// domain. It fails with an *AddressError.
func NewAddress(raw string) (Address, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return Address{}, &AddressError{Address: raw, Reason: "address is empty"}
	}
	if !addressPattern.MatchString(value) {
		return Address{}, &AddressError{Address: raw, Reason: "invalid format"}
	}
	if _, blocked := blockedDomains[domainOf(value)]; blocked {
		return Address{}, &AddressError{Address: raw, Reason: "domain is not allowed"}
	}
	return Address{value: value}, nil
}

// MustAddress is like NewAddress but panics on error. For tests and constants.
func MustAddress(raw string) Address {
	a, err := NewAddress(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return a.value }

// Domain returns the part after the last '@'.
func (a Address) Domain() string { return domainOf(a.value) }

func (a Address) Equal(other Address) bool { return a.value == other.value }

// IsZero reports whether a was never constructed.
func (a Address) IsZero() bool { return a.value == "" }

func domainOf(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}
