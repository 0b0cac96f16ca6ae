package gmail

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// normalizeMessage maps one full-format Gmail message onto the canonical
// record. Header parsing and body decoding are best effort; only a
// missing payload is treated as malformed.
func normalizeMessage(
	accountID string,
	msg *gmailapi.Message,
) (*model.EmailMetadata, error) {
	if msg == nil || msg.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", msgID(msg))
	}

	h := parseHeaders(msg.Payload.Headers)
	body := extractBody(msg.Payload)

	meta := model.EmailMetadata{
		ID:         msg.Id,
		AccountID:  accountID,
		ProviderID: msg.Id,
		ThreadID:   msg.ThreadId,
		Subject:    h.subject,
		Sender:     h.from,
		Recipients: model.EmailRecipients{
			To:  h.to,
			CC:  h.cc,
			BCC: h.bcc,
		},
		Date:           h.date,
		Size:           msg.SizeEstimate,
		Labels:         msg.LabelIds,
		IsRead:         !hasLabel(msg.LabelIds, "UNREAD"),
		IsStarred:      hasLabel(msg.LabelIds, "STARRED"),
		IsDraft:        hasLabel(msg.LabelIds, "DRAFT"),
		IsSent:         hasLabel(msg.LabelIds, "SENT"),
		IsTrash:        hasLabel(msg.LabelIds, "TRASH"),
		IsSpam:         hasLabel(msg.LabelIds, "SPAM"),
		HasAttachments: hasAttachmentPart(msg.Payload),
		Snippet:        model.Truncate(msg.Snippet),
		PreviewText:    body,
	}

	if msg.InternalDate > 0 {
		meta.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	provider.EnsureDates(&meta, time.Now().UTC())

	return &meta, nil
}

func msgID(msg *gmailapi.Message) string {
	if msg == nil {
		return "<nil>"
	}
	return msg.Id
}

// parsedHeaders collects the header fields the canonical model needs.
type parsedHeaders struct {
	subject string
	from    model.EmailAddress
	to      []model.EmailAddress
	cc      []model.EmailAddress
	bcc     []model.EmailAddress
	date    time.Time
}

func parseHeaders(headers []*gmailapi.MessagePartHeader) parsedHeaders {
	var h parsedHeaders
	for _, header := range headers {
		if header == nil {
			continue
		}
		switch strings.ToLower(header.Name) {
		case "subject":
			h.subject = header.Value
		case "from":
			h.from = provider.ParseAddress(header.Value)
		case "to":
			h.to = provider.ParseAddressList(header.Value)
		case "cc":
			h.cc = provider.ParseAddressList(header.Value)
		case "bcc":
			h.bcc = provider.ParseAddressList(header.Value)
		case "date":
			if t, err := mail.ParseDate(header.Value); err == nil {
				h.date = t.UTC()
			}
		}
	}
	return h
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// extractBody decodes the message body. Single-part bodies are used as
// is; multipart messages prefer the text/plain part. Decoding failures
// fall back to an empty body rather than failing the message.
func extractBody(payload *gmailapi.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if s, err := decodeBase64URL(payload.Body.Data); err == nil {
			return s
		}
		return ""
	}

	if part := findTextPart(payload.Parts, "text/plain"); part != nil {
		if s, err := decodeBase64URL(part.Body.Data); err == nil {
			return s
		}
	}
	return ""
}

// findTextPart walks the part tree depth first for the wanted MIME type.
func findTextPart(parts []*gmailapi.MessagePart, mimeType string) *gmailapi.MessagePart {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return part
		}
		if found := findTextPart(part.Parts, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// hasAttachmentPart reports whether any part at any depth carries a
// filename, which is how Gmail marks attachments.
func hasAttachmentPart(payload *gmailapi.MessagePart) bool {
	for _, part := range payload.Parts {
		if part == nil {
			continue
		}
		if part.Filename != "" {
			return true
		}
		if hasAttachmentPart(part) {
			return true
		}
	}
	return false
}

// decodeBase64URL handles both padded and unpadded base64url payloads.
func decodeBase64URL(data string) (string, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
