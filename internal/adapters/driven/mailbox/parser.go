package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// ParseMessage parses a raw RFC 5322 message and returns one SourceDocument
// per document attachment. Inline text parts and non-document attachments
// are skipped. A message without document attachments parses to an empty
// slice, not an error.
func ParseMessage(ref string, raw []byte) ([]domain.SourceDocument, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", ref, err)
	}

	from := msg.Header.Get("From")
	subject := decodeHeader(msg.Header.Get("Subject"))
	receivedAt, err := msg.Header.Date()
	if err != nil {
		receivedAt = time.Now()
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		// Single-part message: only useful if the whole body is a document.
		return singlePart(ref, msg, from, subject, receivedAt)
	}

	var docs []domain.SourceDocument
	reader := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return docs, fmt.Errorf("read part of %s: %w", ref, err)
		}

		filename := partFilename(part)
		if filename == "" || !isDocument(filename, part.Header.Get("Content-Type")) {
			continue
		}

		data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return docs, fmt.Errorf("decode attachment %s of %s: %w", filename, ref, err)
		}
		if len(data) == 0 {
			continue
		}

		docs = append(docs, domain.SourceDocument{
			Ref:        ref,
			Filename:   filename,
			Bytes:      data,
			From:       from,
			Subject:    subject,
			ReceivedAt: receivedAt,
			Channel:    "email",
		})
	}
	return docs, nil
}

func singlePart(ref string, msg *mail.Message, from, subject string, receivedAt time.Time) ([]domain.SourceDocument, error) {
	contentType := msg.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/pdf") {
		return nil, nil
	}

	data, err := decodeReader(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", ref, err)
	}

	return []domain.SourceDocument{{
		Ref:        ref,
		Filename:   path.Base(ref) + ".pdf",
		Bytes:      data,
		From:       from,
		Subject:    subject,
		ReceivedAt: receivedAt,
		Channel:    "email",
	}}, nil
}

// partFilename resolves the attachment filename from either the
// Content-Disposition or Content-Type parameters.
func partFilename(part *multipart.Part) string {
	if name := part.FileName(); name != "" {
		return decodeHeader(name)
	}
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err == nil && params["name"] != "" {
		return decodeHeader(params["name"])
	}
	return ""
}

// isDocument reports whether an attachment looks like a clinical document.
func isDocument(filename, contentType string) bool {
	if strings.HasPrefix(contentType, "application/pdf") {
		return true
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf", ".tif", ".tiff":
		return true
	}
	return false
}

func decodeBody(part *multipart.Part, encoding string) ([]byte, error) {
	return decodeReader(part, encoding)
}

func decodeReader(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	return io.ReadAll(r)
}

func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
