// Package mailparse turns raw RFC 5322 messages into the fields the
// importer stores.
package mailparse

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

// Message holds the decoded headers and bodies of one email.
type Message struct {
	Subject        string
	From           string
	To             string
	Cc             string
	Bcc            string
	SentAt         time.Time // always UTC
	BodyText       string
	BodyHTML       string
	HasAttachments bool
}

// maxEmbeddedDepth bounds how deep message/rfc822 parts are followed.
const maxEmbeddedDepth = 4

// zonelessDateLayouts are tried when a Date header has no zone, which
// some mailers emit. Such dates are taken as UTC.
var zonelessDateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04",
}

// Parser parses raw messages. The zero value is not usable; use New.
type Parser struct {
	log *zap.Logger
	now func() time.Time
}

// New creates a parser that logs per-part problems to log.
func New(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("mailparse"), now: time.Now}
}

// Parse reads raw. It fails only when the top-level header cannot be
// read; broken parts and unknown charsets degrade to empty or raw text.
func (p *Parser) Parse(raw []byte) (*Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("read message: %w", err)
	}
	if err != nil {
		p.log.Debug("message body kept undecoded", zap.Error(err))
	}

	header := mail.Header{Header: entity.Header}
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	msg := &Message{
		Subject: subject,
		From:    headerText(header, "From"),
		To:      joinValues(header, "To"),
		Cc:      joinValues(header, "Cc"),
		Bcc:     joinValues(header, "Bcc"),
		SentAt:  p.sentAt(header),
	}

	if entity.MultipartReader() == nil && contentTypeOf(entity) != "message/rfc822" {
		body := p.readBody(entity)
		if contentTypeOf(entity) == "text/html" {
			msg.BodyHTML = body
		} else {
			msg.BodyText = body
		}
		return msg, nil
	}

	p.collectBodies(msg, entity, 0)
	return msg, nil
}

// collectBodies walks entity filling the first text/plain and text/html
// bodies still missing from msg. Inline message/rfc822 parts are read as
// nested messages.
func (p *Parser) collectBodies(msg *Message, entity *message.Entity, depth int) {
	walkErr := entity.Walk(func(path []int, part *message.Entity, err error) error {
		if part == nil || (err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err)) {
			p.log.Warn("skipping unreadable part", zap.Ints("path", path), zap.Error(err))
			return nil
		}
		if part.MultipartReader() != nil {
			return nil
		}

		disposition, _, _ := part.Header.ContentDisposition()
		if disposition == "attachment" {
			msg.HasAttachments = true
			return nil
		}

		contentType := contentTypeOf(part)
		switch {
		case contentType == "message/rfc822":
			p.collectEmbedded(msg, part, depth)
		case contentType == "text/plain" && msg.BodyText == "":
			msg.BodyText = p.readBody(part)
		case contentType == "text/html" && msg.BodyHTML == "":
			msg.BodyHTML = p.readBody(part)
		}
		return nil
	})
	if walkErr != nil {
		p.log.Warn("multipart walk stopped early", zap.Int("depth", depth), zap.Error(walkErr))
	}
}

func (p *Parser) collectEmbedded(msg *Message, part *message.Entity, depth int) {
	if depth >= maxEmbeddedDepth {
		p.log.Warn("embedded message nested too deep", zap.Int("depth", depth))
		return
	}
	inner, err := message.Read(part.Body)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		p.log.Warn("skipping unreadable embedded message", zap.Error(err))
		return
	}
	p.collectBodies(msg, inner, depth+1)
}

// contentTypeOf returns the lowercased media type, "text/plain" when the
// header is missing.
func contentTypeOf(e *message.Entity) string {
	contentType, _, err := e.Header.ContentType()
	if err != nil || contentType == "" {
		return "text/plain"
	}
	return strings.ToLower(contentType)
}

// readBody returns the decoded part body, or "" when it cannot be read.
func (p *Parser) readBody(part *message.Entity) string {
	body, err := io.ReadAll(part.Body)
	if err != nil {
		p.log.Warn("failed to read part body",
			zap.String("content_type", contentTypeOf(part)),
			zap.Error(err),
		)
		return ""
	}
	return string(body)
}

// sentAt parses the Date header, falling back to the current time.
func (p *Parser) sentAt(header mail.Header) time.Time {
	value := strings.TrimSpace(header.Get("Date"))
	if value == "" {
		return p.now().UTC()
	}
	date, err := header.Date()
	if err == nil && !date.IsZero() {
		return date.UTC()
	}
	for _, layout := range zonelessDateLayouts {
		if date, zerr := time.ParseInLocation(layout, value, time.UTC); zerr == nil {
			return date
		}
	}
	p.log.Warn("unparsable Date header", zap.String("date", value), zap.Error(err))
	return p.now().UTC()
}

// headerText decodes RFC 2047 encoded-words in a header field. Values
// that fail to decode are returned raw.
func headerText(header mail.Header, key string) string {
	text, err := header.Text(key)
	if err != nil {
		return header.Get(key)
	}
	return text
}

// joinValues joins every occurrence of a header with ", ".
func joinValues(header mail.Header, key string) string {
	var decoded []string
	fields := header.FieldsByKey(key)
	for fields.Next() {
		text, err := fields.Text()
		if err != nil {
			text = fields.Value()
		}
		if v := strings.TrimSpace(text); v != "" {
			decoded = append(decoded, v)
		}
	}
	return strings.Join(decoded, ", ")
}
