package imap

import (
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// imapSession adapts go-imap's client to the session interface the
// state machine drives.
type imapSession struct {
	c *imapclient.Client
}

// dialIMAP opens a connection and authenticates. A transport failure is
// transient; a rejected login is an auth error.
func dialIMAP(creds provider.IMAPCredentials) (session, error) {
	addr := fmt.Sprintf("%s:%d", creds.Host, creds.Port)

	var client *imapclient.Client
	var err error
	if creds.UseTLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &provider.TransientError{
			Provider: model.ProviderIMAP,
			Message:  fmt.Sprintf("connecting to %s", addr),
			Err:      err,
		}
	}

	if err := client.Login(creds.Username, creds.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.AuthError{
			Provider: model.ProviderIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s", creds.Username,
			),
			Err: err,
		}
	}

	return &imapSession{c: client}, nil
}

func (s *imapSession) selectInbox() (uint32, error) {
	data, err := s.c.Select("INBOX", &goimap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting INBOX: %w", err)
	}
	return data.NumMessages, nil
}

// fetch streams the requested range. Header and body chunks for each
// message arrive asynchronously; Collect assembles them so handle only
// ever sees complete messages. BODY.PEEK keeps the fetch side-effect
// free (no \Seen flag is set).
func (s *imapSession) fetch(
	set goimap.SeqSet,
	handle func(fetchedMessage) bool,
) error {
	bodySection := &goimap.FetchItemBodySection{Peek: true}

	fetchOpts := &goimap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		RFC822Size:   true,
		BodySection:  []*goimap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.c.Fetch(set, fetchOpts)
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		fm := fetchedMessage{
			seq:          buf.SeqNum,
			uid:          uint32(buf.UID),
			envelope:     buf.Envelope,
			flags:        buf.Flags,
			internalDate: buf.InternalDate,
			size:         buf.RFC822Size,
			raw:          buf.FindBodySection(bodySection),
		}
		if !handle(fm) {
			break
		}
	}

	return fetchCmd.Close()
}

func (s *imapSession) disconnect() error {
	if err := s.c.Logout().Wait(); err != nil {
		return s.c.Close()
	}
	return s.c.Close()
}
