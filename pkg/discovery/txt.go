package discovery

import (
	"sort"
	"strings"
)

// TXT keys.
const (
	TXTKeyName   = "n"
	TXTKeyPaths  = "p"
	TXTKeySecure = "s"
)

// MaxInstanceNameLength is the DNS label limit.
const MaxInstanceNameLength = 63

// maxTXTLength is the limit of one TXT character-string.
const maxTXTLength = 255

// ServiceTXT is the TXT record of a CoAP endpoint.
type ServiceTXT struct {
	// Name is a human-readable endpoint name.
	Name string
	// Paths are resource paths the endpoint serves, sorted on encode.
	Paths []string
	// Secure marks a coaps endpoint.
	Secure bool
}

// Encode returns the TXT strings. Paths are comma-separated; a list that
// does not fit one string is split over several "p" entries.
func (t ServiceTXT) Encode() []string {
	var out []string
	if t.Name != "" {
		out = append(out, TXTKeyName+"="+t.Name)
	}
	if t.Secure {
		out = append(out, TXTKeySecure+"=1")
	}

	paths := make([]string, 0, len(t.Paths))
	for _, p := range t.Paths {
		if p = strings.Trim(p, "/"); p != "" {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	prefix := TXTKeyPaths + "="
	cur := prefix
	for _, p := range paths {
		if cur != prefix && len(cur)+1+len(p) > maxTXTLength {
			out = append(out, cur)
			cur = prefix
		}
		if cur != prefix {
			cur += ","
		}
		cur += p
	}
	if cur != prefix {
		out = append(out, cur)
	}
	return out
}

// Validate checks the name length and that every encoded string fits.
func (t ServiceTXT) Validate() error {
	if len(t.Name) > MaxInstanceNameLength {
		return ErrInvalidName
	}
	for _, s := range t.Encode() {
		if len(s) > maxTXTLength {
			return ErrTXTTooLong
		}
	}
	return nil
}

// ParseServiceTXT decodes TXT strings. Unknown keys are ignored.
func ParseServiceTXT(records []string) ServiceTXT {
	var t ServiceTXT
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case TXTKeyName:
			t.Name = value
		case TXTKeySecure:
			t.Secure = value == "1"
		case TXTKeyPaths:
			for _, p := range strings.Split(value, ",") {
				if p != "" {
					t.Paths = append(t.Paths, p)
				}
			}
		}
	}
	return t
}

// ParseTXT parses raw TXT record strings into a map. Repeated keys keep
// the last value.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if key, value, ok := strings.Cut(record, "="); ok && key != "" {
			result[key] = value
		}
	}
	return result
}
