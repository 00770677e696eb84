package mailparse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func newTestParser(now time.Time) *Parser {
	p := New(zap.NewNop())
	p.now = func() time.Time { return now }
	return p
}

func TestParse_EncodedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain ASCII", "Hello World", "Hello World"},
		{"UTF-8 encoded", "=?UTF-8?Q?Important_:_comment_mettre_=C3=A0_jour?=", "Important : comment mettre à jour"},
		{"ISO-8859-1 encoded", "=?ISO-8859-1?Q?Caf=E9?=", "Café"},
		{"Base64 encoded", "=?UTF-8?B?SGVsbG8gV29ybGQ=?=", "Hello World"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "From: " + tt.input + " <a@example.com>\nTo: " + tt.input + " <b@example.com>\nSubject: " + tt.input + "\n\nbody\n"
			msg, err := newTestParser(time.Now()).Parse(crlf(raw))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, msg.Subject)
			assert.Equal(t, tt.expected+" <a@example.com>", msg.From)
			assert.Equal(t, tt.expected+" <b@example.com>", msg.To)
		})
	}
}

func TestParse_MultipartFirstWins(t *testing.T) {
	raw := crlf(`From: Alice <alice@example.com>
To: me@example.com
To: other@example.com
Cc: =?UTF-8?Q?J=C3=BCrgen?= <j@example.com>
Subject: =?UTF-8?B?UXVhcnRlcmx5IHJlcG9ydA==?=
Date: Mon, 03 Mar 2025 10:15:00 +0100
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

first plain
--inner
Content-Type: text/html; charset=utf-8

<p>first html</p>
--inner--
--outer
Content-Type: text/plain; charset=utf-8

second plain
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--outer--
`)

	msg, err := newTestParser(time.Now()).Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly report", msg.Subject)
	assert.Equal(t, "Alice <alice@example.com>", msg.From)
	assert.Equal(t, "me@example.com, other@example.com", msg.To)
	assert.Equal(t, "Jürgen <j@example.com>", msg.Cc)
	assert.Empty(t, msg.Bcc)
	assert.Equal(t, "first plain", strings.TrimSpace(msg.BodyText))
	assert.Equal(t, "<p>first html</p>", strings.TrimSpace(msg.BodyHTML))
	assert.True(t, msg.HasAttachments)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC), msg.SentAt)
	assert.Equal(t, time.UTC, msg.SentAt.Location())
}

func TestParse_SinglePart(t *testing.T) {
	t.Run("html", func(t *testing.T) {
		raw := crlf(`From: a@example.com
Subject: hi
Content-Type: text/html; charset=utf-8

<b>hello</b>
`)
		msg, err := newTestParser(time.Now()).Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "<b>hello</b>", strings.TrimSpace(msg.BodyHTML))
		assert.Empty(t, msg.BodyText)
		assert.False(t, msg.HasAttachments)
	})

	t.Run("no content type is plain", func(t *testing.T) {
		raw := crlf(`From: a@example.com
Subject: hi

just text
`)
		msg, err := newTestParser(time.Now()).Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "just text", strings.TrimSpace(msg.BodyText))
		assert.Empty(t, msg.BodyHTML)
	})

	t.Run("quoted printable is decoded", func(t *testing.T) {
		raw := crlf(`Subject: qp
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

caf=C3=A9
`)
		msg, err := newTestParser(time.Now()).Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "café", strings.TrimSpace(msg.BodyText))
	})
}

func TestParse_DateFallback(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name string
		raw  string
	}{
		{"missing", "Subject: no date\n\nbody\n"},
		{"garbage", "Subject: bad date\nDate: not a date\n\nbody\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := newTestParser(now).Parse(crlf(tt.raw))
			require.NoError(t, err)
			assert.True(t, msg.SentAt.Equal(now))
			assert.Equal(t, time.UTC, msg.SentAt.Location())
		})
	}
}

func TestParse_ZonelessDateIsUTC(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"with weekday", "Tue, 4 Mar 2025 08:00:00", time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)},
		{"without weekday", "4 Mar 2025 08:00:00", time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)},
		{"without seconds", "Tue, 04 Mar 2025 08:30", time.Date(2025, 3, 4, 8, 30, 0, 0, time.UTC)},
		{"zoned still wins", "Tue, 4 Mar 2025 08:00:00 +0200", time.Date(2025, 3, 4, 6, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := newTestParser(now).Parse(crlf("Subject: s\nDate: " + tt.date + "\n\nbody\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.SentAt)
			assert.Equal(t, time.UTC, msg.SentAt.Location())
		})
	}
}

func TestParse_EmbeddedMessage(t *testing.T) {
	raw := crlf(`From: Alice <alice@example.com>
Subject: Fwd: contract
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: message/rfc822

From: Bob <bob@example.com>
Subject: contract
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Please sign by Monday.
--inner
Content-Type: text/html; charset=utf-8

<p>Please sign by Monday.</p>
--inner--
--outer--
`)
	msg, err := newTestParser(time.Now()).Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Fwd: contract", msg.Subject)
	assert.Equal(t, "Please sign by Monday.", strings.TrimSpace(msg.BodyText))
	assert.Equal(t, "<p>Please sign by Monday.</p>", strings.TrimSpace(msg.BodyHTML))
	assert.False(t, msg.HasAttachments)

	t.Run("outer text wins", func(t *testing.T) {
		raw := crlf(`Subject: Fwd
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: text/plain

See below.
--outer
Content-Type: message/rfc822

Subject: original
Content-Type: multipart/mixed; boundary="inner"

--inner
Content-Type: text/plain

original body
--inner
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"

%PDF
--inner--
--outer--
`)
		msg, err := newTestParser(time.Now()).Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "See below.", strings.TrimSpace(msg.BodyText))
		assert.True(t, msg.HasAttachments)
	})

	t.Run("attached message is not descended", func(t *testing.T) {
		raw := crlf(`Subject: Fwd
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: message/rfc822
Content-Disposition: attachment; filename="orig.eml"

Subject: original

original body
--outer--
`)
		msg, err := newTestParser(time.Now()).Parse(raw)
		require.NoError(t, err)
		assert.Empty(t, msg.BodyText)
		assert.True(t, msg.HasAttachments)
	})
}

func TestParse_UnknownCharsetIsTolerated(t *testing.T) {
	raw := crlf(`Subject: odd charset
Content-Type: text/plain; charset=x-unknown-charset

plain bytes
`)
	msg, err := newTestParser(time.Now()).Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, msg.BodyText, "plain bytes")
}

func TestParse_MalformedHeader(t *testing.T) {
	_, err := newTestParser(time.Now()).Parse([]byte("this is not a header line without colon\r\n\r\nbody"))
	assert.Error(t, err)
}
