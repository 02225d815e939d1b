package mailbox

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/sheet-mailer/internal/model"
)

// Config holds the IMAP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	Mailbox  string
}

// Filter narrows the search to unseen notifications received since a
// date, optionally from a sender and/or with a subject substring.
type Filter struct {
	Since   time.Time
	From    string
	Subject string
}

// Message is one fetched notification.
type Message struct {
	UID uint32
	Raw []byte
}

// Client wraps go-imap v2 for reading bounce notifications. Each call
// opens its own session and logs out before returning.
type Client struct {
	cfg  Config
	dial func(addr string, useTLS bool) (*imapclient.Client, error)
}

// NewClient creates a new IMAP client configuration.
func NewClient(cfg Config) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Client{cfg: cfg, dial: dial}
}

func dial(addr string, useTLS bool) (*imapclient.Client, error) {
	if useTLS {
		return imapclient.DialTLS(addr, nil)
	}
	return imapclient.DialStartTLS(addr, nil)
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *Client) Connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.MailboxError{Op: "connect", Err: err}
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	client, err := c.dial(addr, c.cfg.TLS)
	if err != nil {
		return nil, &model.MailboxError{
			Op:  "connect",
			Err: fmt.Errorf("connecting to IMAP %s: %w", addr, err),
		}
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &model.MailboxError{
			Op:  "login",
			Err: fmt.Errorf("authentication failed for %s: %w", c.cfg.Username, err),
		}
	}

	return client, nil
}

// FetchUnseen selects the configured mailbox, searches for unseen
// messages matching f and fetches their full bodies. Fetching marks the
// messages \Seen, so a notification is reconciled once.
func (c *Client) FetchUnseen(ctx context.Context, f Filter) ([]Message, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		return nil, &model.MailboxError{
			Op:  "select",
			Err: fmt.Errorf("selecting %s: %w", c.cfg.Mailbox, err),
		}
	}

	searchData, err := client.UIDSearch(SearchCriteria(f), nil).Wait()
	if err != nil {
		return nil, &model.MailboxError{
			Op:  "search",
			Err: fmt.Errorf("searching %s: %w", c.cfg.Mailbox, err),
		}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}
		messages = append(messages, Message{UID: uint32(buf.UID), Raw: raw})
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, &model.MailboxError{
			Op:  "fetch",
			Err: fmt.Errorf("fetching messages: %w", err),
		}
	}

	return messages, nil
}

// SearchCriteria translates f into an IMAP SEARCH: UNSEEN SINCE <date>
// plus FROM / SUBJECT header matches when set.
func SearchCriteria(f Filter) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{
		Since:   f.Since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	if f.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "From",
			Value: f.From,
		})
	}
	if f.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "Subject",
			Value: f.Subject,
		})
	}
	return criteria
}
