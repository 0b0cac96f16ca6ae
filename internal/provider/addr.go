package provider

import (
	"strings"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
)

// ParseAddress parses a header address of the form
// `Display Name <mailbox@host>` into its parts. A bare address yields an
// empty name. Display names containing angle brackets are tolerated: the
// last bracketed token is taken as the address.
func ParseAddress(value string) model.EmailAddress {
	value = strings.TrimSpace(value)

	open := strings.LastIndex(value, "<")
	end := strings.LastIndex(value, ">")
	if open >= 0 && end > open {
		name := strings.TrimSpace(value[:open])
		name = strings.Trim(name, `"`)
		return model.EmailAddress{
			Name:  name,
			Email: strings.TrimSpace(value[open+1 : end]),
		}
	}

	return model.EmailAddress{Email: value}
}

// ParseAddressList parses a comma-separated header address list.
func ParseAddressList(value string) []model.EmailAddress {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	addrs := make([]model.EmailAddress, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		addrs = append(addrs, ParseAddress(part))
	}
	return addrs
}

// EnsureDates fills zero Date/ReceivedAt fields with now so canonical
// records never carry a null timestamp.
func EnsureDates(m *model.EmailMetadata, now time.Time) {
	if m.Date.IsZero() {
		m.Date = now
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = now
	}
	if m.Size < 0 {
		m.Size = 0
	}
}
