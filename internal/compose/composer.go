// Package compose builds outgoing RFC 5322 payloads for send, reply, and
// draft operations, and resolves reply targets from the original message.
package compose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

// Request describes one outgoing message. Recipient fields hold
// comma-separated address lists, written into headers as-is.
type Request struct {
	To          string
	Cc          string
	Bcc         string
	ReplyTo     string
	Subject     string
	Body        string
	Attachments []string // file paths, read at build time

	// thread continuity, set by ReplyRequest
	InReplyTo  string
	References string
	ThreadID   gmail.ThreadID
}

// Build assembles the wire payload. Attachment content is read at build
// time; an unreadable file fails validation before any network call, as
// does an empty recipient list.
func Build(req Request) (gmail.Outgoing, error) {
	if strings.TrimSpace(req.To) == "" {
		return gmail.Outgoing{}, gmail.ValidationError("message has no recipients")
	}

	var buf bytes.Buffer
	writeHeader(&buf, "To", req.To)
	writeHeader(&buf, "Cc", req.Cc)
	writeHeader(&buf, "Bcc", req.Bcc)
	writeHeader(&buf, "Reply-To", req.ReplyTo)
	writeHeader(&buf, "Subject", req.Subject)
	writeHeader(&buf, "In-Reply-To", req.InReplyTo)
	writeHeader(&buf, "References", req.References)
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(req.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(req.Body)
		return gmail.Outgoing{Raw: buf.Bytes(), ThreadID: req.ThreadID}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary()))

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=\"UTF-8\""},
	})
	if err != nil {
		return gmail.Outgoing{}, fmt.Errorf("create text part: %w", err)
	}
	if _, err := text.Write([]byte(req.Body)); err != nil {
		return gmail.Outgoing{}, fmt.Errorf("write text part: %w", err)
	}

	for _, path := range req.Attachments {
		if err := attachFile(mw, path); err != nil {
			return gmail.Outgoing{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return gmail.Outgoing{}, fmt.Errorf("finish multipart body: %w", err)
	}
	buf.Write(body.Bytes())
	return gmail.Outgoing{Raw: buf.Bytes(), ThreadID: req.ThreadID}, nil
}

func attachFile(mw *multipart.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return gmail.ValidationError("attachment %s is unreadable: %v", path, err)
	}
	name := filepath.Base(path)
	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", mediaType, name)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("create attachment part %s: %w", name, err)
	}
	if err := writeBase64(part, data); err != nil {
		return fmt.Errorf("encode attachment %s: %w", name, err)
	}
	return nil
}

// writeBase64 wraps encoded content at the 76-column line limit.
func writeBase64(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	const lineLen = 76
	for len(encoded) > 0 {
		n := min(lineLen, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// ReplyRequest derives a reply to original: the destination is the
// original's Reply-To header when present, else its From header; the
// subject gains a single Re: prefix; In-Reply-To and References carry the
// original's message id so the reply lands in the same conversation.
func ReplyRequest(original gmail.Message, body, cc string) Request {
	to := original.Header("Reply-To")
	if to == "" {
		to = original.Header("From")
	}
	subject := original.Header("Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	msgID := original.Header("Message-ID")
	refs := strings.TrimSpace(strings.TrimSpace(original.Header("References")) + " " + msgID)
	return Request{
		To:         to,
		Cc:         cc,
		Subject:    subject,
		Body:       body,
		InReplyTo:  msgID,
		References: refs,
		ThreadID:   original.ThreadID,
	}
}
