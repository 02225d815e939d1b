package bounce

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/sheet-mailer/internal/model"
)

// Extractor pulls the failed recipient address out of a raw bounce
// notification. ok is false when the message should be skipped.
type Extractor interface {
	Extract(raw []byte) (address string, ok bool)
}

// NewExtractor returns the extractor for a configured strategy.
func NewExtractor(cfg model.BounceConfig) (Extractor, error) {
	switch cfg.Strategy {
	case model.StrategyBody:
		return BodyPhraseExtractor{Marker: cfg.Marker}, nil
	case model.StrategyHeader:
		return ToHeaderExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown bounce strategy %q", cfg.Strategy)
	}
}

// BodyPhraseExtractor reads free-text bounces of the form
// "<Marker> to <address> because ..." from the first text/plain part of
// a multipart message.
type BodyPhraseExtractor struct {
	Marker string
}

// Extract implements Extractor.
func (e BodyPhraseExtractor) Extract(raw []byte) (string, bool) {
	body, ok := firstPlainTextPart(raw)
	if !ok {
		return "", false
	}
	return AddressAfterMarker(body, e.Marker)
}

// AddressAfterMarker finds marker in body and returns the text between
// the next "to " and the following " because".
func AddressAfterMarker(body, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}

	_, rest, found := strings.Cut(body[i+len(marker):], "to ")
	if !found {
		return "", false
	}
	address, _, found := strings.Cut(rest, " because")
	if !found {
		return "", false
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return "", false
	}
	return address, true
}

// errFound stops the part walk once a text/plain part has been read.
var errFound = errors.New("found")

// firstPlainTextPart returns the decoded body of the first text/plain
// part. Messages that are not multipart yield nothing.
func firstPlainTextPart(raw []byte) (string, bool) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", false
	}

	mediaType, _, _ := entity.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", false
	}

	var text string
	err = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		// Parts in an unknown charset are read undecoded.
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}
		partType, _, _ := part.Header.ContentType()
		if partType != "text/plain" {
			return nil
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return err
		}
		text = string(body)
		return errFound
	})
	if !errors.Is(err, errFound) {
		return "", false
	}
	return text, true
}

// ToHeaderExtractor treats the notification's To header as the failed
// address, for providers that address bounces to the original
// recipient.
type ToHeaderExtractor struct{}

// Extract implements Extractor. The first parsable address wins; an
// unparsable header is used verbatim.
func (ToHeaderExtractor) Extract(raw []byte) (string, bool) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", false
	}

	h := mail.Header{Header: entity.Header}
	if addrs, err := h.AddressList("To"); err == nil && len(addrs) > 0 {
		return addrs[0].Address, true
	}

	to := strings.TrimSpace(h.Get("To"))
	if to == "" {
		return "", false
	}
	return to, true
}
