package dispatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/nhle/sheet-mailer/internal/model"
)

// attachment is read once, when the Composer is built.
type attachment struct {
	name        string
	contentType string
	data        []byte
}

var now = time.Now

// Composer builds the message sent to each recipient.
type Composer struct {
	from       string
	subject    string
	body       string
	attachment *attachment
}

// NewComposer reads the optional attachment and prepares a Composer. An
// unreadable attachment is a *model.ConfigError.
func NewComposer(from string, cfg model.EmailConfig) (*Composer, error) {
	c := &Composer{from: from, subject: cfg.Subject, body: cfg.Body}
	if cfg.AttachmentPath == "" {
		return c, nil
	}

	data, err := os.ReadFile(cfg.AttachmentPath)
	if err != nil {
		return nil, &model.ConfigError{
			Message: fmt.Sprintf("reading attachment %s", cfg.AttachmentPath),
			Err:     err,
		}
	}

	subtype := strings.TrimSpace(cfg.AttachmentType)
	if subtype == "" {
		subtype = "octet-stream"
	}
	c.attachment = &attachment{
		name:        filepath.Base(cfg.AttachmentPath),
		contentType: "application/" + subtype,
		data:        data,
	}
	return c, nil
}

// Compose returns a new message addressed to to.
func (c *Composer) Compose(to string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", c.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", c.subject)
	msg.SetHeader("Message-ID", c.messageID())
	msg.SetDateHeader("Date", now())
	msg.SetBody("text/plain", c.body)

	if a := c.attachment; a != nil {
		msg.Attach(a.name,
			gomail.SetHeader(map[string][]string{"Content-Type": {a.contentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(a.data)
				return err
			}),
		)
	}
	return msg
}

func (c *Composer) messageID() string {
	domain := "localhost"
	if _, d, ok := strings.Cut(c.from, "@"); ok && d != "" {
		domain = strings.TrimSuffix(d, ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
