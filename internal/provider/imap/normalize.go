package imap

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// normalizeMessage maps one assembled IMAP message onto the canonical
// record. A missing envelope is malformed; a missing or unparsable body
// yields a record with best-effort partial fields instead.
func normalizeMessage(
	accountID string,
	fm fetchedMessage,
) (*model.EmailMetadata, error) {
	if fm.envelope == nil {
		return nil, &provider.MalformedMessageError{
			Provider:  model.ProviderIMAP,
			MessageID: strconv.FormatUint(uint64(fm.seq), 10),
			Err:       fmt.Errorf("no envelope"),
		}
	}

	id := strconv.FormatUint(uint64(fm.uid), 10)
	if fm.uid == 0 {
		id = strconv.FormatUint(uint64(fm.seq), 10)
	}

	body, attachment := parseBody(fm.raw)

	meta := model.EmailMetadata{
		ID:         id,
		AccountID:  accountID,
		ProviderID: id,
		Subject:    fm.envelope.Subject,
		Sender:     envelopeAddress(fm.envelope.From),
		Recipients: model.EmailRecipients{
			To:  envelopeAddresses(fm.envelope.To),
			CC:  envelopeAddresses(fm.envelope.Cc),
			BCC: envelopeAddresses(fm.envelope.Bcc),
		},
		Date:           fm.envelope.Date,
		ReceivedAt:     fm.internalDate,
		Size:           fm.size,
		IsRead:         hasFlag(fm.flags, goimap.FlagSeen),
		IsStarred:      hasFlag(fm.flags, goimap.FlagFlagged),
		IsDraft:        hasFlag(fm.flags, goimap.FlagDraft),
		IsTrash:        hasFlag(fm.flags, goimap.FlagDeleted),
		IsSpam:         hasFlag(fm.flags, goimap.FlagJunk),
		HasAttachments: attachment,
		Snippet:        model.Truncate(body),
		PreviewText:    body,
	}

	if meta.Size == 0 && len(fm.raw) > 0 {
		meta.Size = int64(len(fm.raw))
	}
	provider.EnsureDates(&meta, time.Now().UTC())

	return &meta, nil
}

func envelopeAddress(addrs []goimap.Address) model.EmailAddress {
	if len(addrs) == 0 {
		return model.EmailAddress{}
	}
	return model.EmailAddress{
		Name:  addrs[0].Name,
		Email: addrs[0].Addr(),
	}
}

func envelopeAddresses(addrs []goimap.Address) []model.EmailAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]model.EmailAddress, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.EmailAddress{Name: a.Name, Email: a.Addr()})
	}
	return out
}

func hasFlag(flags []goimap.Flag, want goimap.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// parseBody extracts the preferred text body and scans the MIME part
// tree for attachments. The scan recurses into nested multiparts and a
// disposition of "attachment" at any depth marks the message.
func parseBody(raw []byte) (text string, hasAttachment bool) {
	if len(raw) == 0 {
		return "", false
	}

	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		// Unparsable MIME: treat the payload as plain text.
		return string(raw), false
	}

	var plain, html string
	walkEntity(ent, &plain, &html, &hasAttachment)

	text = plain
	if text == "" {
		text = html
	}
	return text, hasAttachment
}

// walkEntity recurses through the part tree collecting the first
// text/plain and text/html bodies and flagging attachment parts.
func walkEntity(ent *message.Entity, plain, html *string, attachment *bool) {
	if mr := ent.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
			walkEntity(part, plain, html, attachment)
		}
	}

	if isAttachment(ent.Header) {
		*attachment = true
		return
	}

	contentType, _, _ := ent.Header.ContentType()
	switch {
	case strings.HasPrefix(contentType, "text/plain") && *plain == "":
		if b, err := io.ReadAll(ent.Body); err == nil {
			*plain = string(b)
		}
	case strings.HasPrefix(contentType, "text/html") && *html == "":
		if b, err := io.ReadAll(ent.Body); err == nil {
			*html = string(b)
		}
	}
}

// isAttachment reports whether a part's disposition marks it as an
// attachment.
func isAttachment(h message.Header) bool {
	disp, _, _ := h.ContentDisposition()
	return strings.EqualFold(disp, "attachment")
}
