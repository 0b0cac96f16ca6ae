package outlook

import (
	"fmt"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// Graph wire types, limited to the projected fields.

type messagePage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	CcRecipients     []graphRecipient `json:"ccRecipients"`
	BccRecipients    []graphRecipient `json:"bccRecipients"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	SentDateTime     string           `json:"sentDateTime"`
	BodyPreview      string           `json:"bodyPreview"`
	IsRead           bool             `json:"isRead"`
	IsDraft          bool             `json:"isDraft"`
	Flag             *graphFlag       `json:"flag"`
	Categories       []string         `json:"categories"`
	HasAttachments   bool             `json:"hasAttachments"`
	ParentFolderID   string           `json:"parentFolderId"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphFlag struct {
	FlagStatus string `json:"flagStatus"`
}

// normalizeMessage maps one Graph message onto the canonical record.
// Graph returns structured addresses, so no header-string parsing is
// needed; only a missing message ID is treated as malformed.
func normalizeMessage(
	accountID string,
	msg graphMessage,
) (*model.EmailMetadata, error) {
	if msg.ID == "" {
		return nil, fmt.Errorf("graph message without id")
	}

	meta := model.EmailMetadata{
		ID:         msg.ID,
		AccountID:  accountID,
		ProviderID: msg.ID,
		ThreadID:   msg.ConversationID,
		Subject:    msg.Subject,
		Sender:     mapAddress(msg.From),
		Recipients: model.EmailRecipients{
			To:  mapAddresses(msg.ToRecipients),
			CC:  mapAddresses(msg.CcRecipients),
			BCC: mapAddresses(msg.BccRecipients),
		},
		Labels:         msg.Categories,
		IsRead:         msg.IsRead,
		IsStarred:      msg.Flag != nil && msg.Flag.FlagStatus == "flagged",
		IsDraft:        msg.IsDraft,
		HasAttachments: msg.HasAttachments,
		Snippet:        model.Truncate(msg.BodyPreview),
		PreviewText:    msg.BodyPreview,
	}

	if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		meta.ReceivedAt = t.UTC()
		meta.Date = t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, msg.SentDateTime); err == nil {
		meta.Date = t.UTC()
	}
	provider.EnsureDates(&meta, time.Now().UTC())

	return &meta, nil
}

func mapAddress(r *graphRecipient) model.EmailAddress {
	if r == nil {
		return model.EmailAddress{}
	}
	return model.EmailAddress{
		Name:  r.EmailAddress.Name,
		Email: r.EmailAddress.Address,
	}
}

func mapAddresses(rs []graphRecipient) []model.EmailAddress {
	if len(rs) == 0 {
		return nil
	}
	addrs := make([]model.EmailAddress, 0, len(rs))
	for _, r := range rs {
		addrs = append(addrs, model.EmailAddress{
			Name:  r.EmailAddress.Name,
			Email: r.EmailAddress.Address,
		})
	}
	return addrs
}
