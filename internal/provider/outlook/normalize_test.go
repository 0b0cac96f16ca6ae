package outlook

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/gtd-mail/internal/model"
)

func TestNormalizeMessageAddresses(t *testing.T) {
	msg := graphMessage{
		ID:   "m-1",
		From: &graphRecipient{EmailAddress: graphEmailAddress{Name: "Ana", Address: "ana@x.com"}},
		ToRecipients: []graphRecipient{
			{EmailAddress: graphEmailAddress{Address: "to@x.com"}},
		},
		CcRecipients: []graphRecipient{
			{EmailAddress: graphEmailAddress{Name: "CC", Address: "cc@x.com"}},
		},
		ReceivedDateTime: "2025-04-01T12:00:00Z",
	}

	meta, err := normalizeMessage("acct", msg)
	if err != nil {
		t.Fatalf("normalizeMessage: %v", err)
	}

	want := model.EmailRecipients{
		To: []model.EmailAddress{{Email: "to@x.com"}},
		CC: []model.EmailAddress{{Name: "CC", Email: "cc@x.com"}},
	}
	if diff := cmp.Diff(want, meta.Recipients); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if meta.Sender.Email != "ana@x.com" {
		t.Errorf("sender = %+v", meta.Sender)
	}
	if meta.AccountID != "acct" || meta.ProviderID != "m-1" {
		t.Errorf("keys = %q/%q", meta.AccountID, meta.ProviderID)
	}
}

func TestNormalizeMessageDates(t *testing.T) {
	received := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	sent := time.Date(2025, 4, 1, 11, 59, 30, 0, time.UTC)

	t.Run("sent date preferred for Date", func(t *testing.T) {
		meta, err := normalizeMessage("acct", graphMessage{
			ID:               "m-1",
			ReceivedDateTime: received.Format(time.RFC3339),
			SentDateTime:     sent.Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("normalizeMessage: %v", err)
		}
		if !meta.ReceivedAt.Equal(received) {
			t.Errorf("ReceivedAt = %v, want %v", meta.ReceivedAt, received)
		}
		if !meta.Date.Equal(sent) {
			t.Errorf("Date = %v, want %v", meta.Date, sent)
		}
	})

	t.Run("missing sent date falls back to received", func(t *testing.T) {
		meta, err := normalizeMessage("acct", graphMessage{
			ID:               "m-2",
			ReceivedDateTime: received.Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("normalizeMessage: %v", err)
		}
		if !meta.Date.Equal(received) {
			t.Errorf("Date = %v, want %v", meta.Date, received)
		}
	})

	t.Run("unparsable dates are filled", func(t *testing.T) {
		meta, err := normalizeMessage("acct", graphMessage{
			ID:               "m-3",
			ReceivedDateTime: "not a timestamp",
		})
		if err != nil {
			t.Fatalf("normalizeMessage: %v", err)
		}
		if meta.Date.IsZero() || meta.ReceivedAt.IsZero() {
			t.Error("dates should never be zero after normalization")
		}
	})
}

func TestNormalizeMessageFlag(t *testing.T) {
	cases := []struct {
		name string
		flag *graphFlag
		want bool
	}{
		{"nil flag", nil, false},
		{"notFlagged", &graphFlag{FlagStatus: "notFlagged"}, false},
		{"complete", &graphFlag{FlagStatus: "complete"}, false},
		{"flagged", &graphFlag{FlagStatus: "flagged"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := normalizeMessage("acct", graphMessage{
				ID:               "m-1",
				Flag:             tc.flag,
				ReceivedDateTime: "2025-04-01T12:00:00Z",
			})
			if err != nil {
				t.Fatalf("normalizeMessage: %v", err)
			}
			if meta.IsStarred != tc.want {
				t.Errorf("IsStarred = %v, want %v", meta.IsStarred, tc.want)
			}
		})
	}
}

func TestNormalizeMessageMissingID(t *testing.T) {
	if _, err := normalizeMessage("acct", graphMessage{Subject: "no id"}); err == nil {
		t.Fatal("expected error for message without id")
	}
}

func TestNormalizeMessageSnippet(t *testing.T) {
	long := ""
	for i := 0; i < model.SnippetLength+50; i++ {
		long += "x"
	}
	meta, err := normalizeMessage("acct", graphMessage{
		ID:               "m-1",
		BodyPreview:      long,
		ReceivedDateTime: "2025-04-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("normalizeMessage: %v", err)
	}
	if len([]rune(meta.Snippet)) != model.SnippetLength {
		t.Errorf("snippet length = %d, want %d", len([]rune(meta.Snippet)), model.SnippetLength)
	}
	if meta.PreviewText != long {
		t.Error("preview text should keep the full body preview")
	}
}
