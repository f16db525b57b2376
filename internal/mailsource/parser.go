// Package mailsource reads raw email archives (EML files, MBOX mailboxes) and
// normalizes them into pipeline records.
package mailsource

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"faqminer/internal/classify"
	"faqminer/internal/models"

	"github.com/rs/zerolog"
)

// RawMessage is a parsed email before normalization
type RawMessage struct {
	MessageID  string
	Subject    string
	From       string
	To         string
	Date       time.Time
	InReplyTo  string
	References string
	Body       string
}

// Parser reads mail archives. Single messages that fail to parse are logged
// and skipped so one corrupt message never aborts an import.
type Parser struct {
	log zerolog.Logger
}

func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{log: logger.With().Str("component", "mailsource").Logger()}
}

// ParseEMLFile parses a single RFC 5322 message file
func (p *Parser) ParseEMLFile(filename string) (*RawMessage, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open EML file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			p.log.Warn().Str("file", filename).Err(err).Msg("error closing file")
		}
	}()

	return p.parseMessage(file)
}

// ParseDirectory recursively parses all .eml files under dirPath
func (p *Parser) ParseDirectory(dirPath string) ([]*RawMessage, error) {
	var messages []*RawMessage

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".eml") {
			return nil
		}

		msg, err := p.ParseEMLFile(path)
		if err != nil {
			p.log.Warn().Str("file", path).Err(err).Msg("failed to parse EML file")
			return nil
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return messages, nil
}

// MBOXProgress tracks streaming mailbox parsing
type MBOXProgress struct {
	BytesProcessed  int64
	TotalBytes      int64
	MessagesParsed  int
	PercentComplete float64
}

// MBOXBatchFunc receives each parsed batch. Returning an error aborts the scan.
type MBOXBatchFunc func(batch []*RawMessage, progress MBOXProgress) error

// ParseMBOXStreaming parses an MBOX mailbox in batches. Memory use stays
// bounded regardless of mailbox size.
func (p *Parser) ParseMBOXStreaming(filename string, batchSize int, fn MBOXBatchFunc) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open MBOX file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			p.log.Warn().Str("file", filename).Err(err).Msg("error closing file")
		}
	}()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat MBOX file: %w", err)
	}
	totalBytes := fileInfo.Size()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var batch []*RawMessage
	var current bytes.Buffer
	var parsed int
	var bytesProcessed int64

	flush := func(final bool) error {
		if len(batch) == 0 {
			return nil
		}
		progress := MBOXProgress{
			BytesProcessed:  bytesProcessed,
			TotalBytes:      totalBytes,
			MessagesParsed:  parsed,
			PercentComplete: float64(bytesProcessed) / float64(totalBytes) * 100,
		}
		if final {
			progress.PercentComplete = 100
		}
		if err := fn(batch, progress); err != nil {
			return fmt.Errorf("batch callback error at message %d: %w", parsed, err)
		}
		batch = nil
		return nil
	}

	consume := func() {
		if current.Len() == 0 {
			return
		}
		msg, err := p.parseMessage(&current)
		if err != nil {
			p.log.Warn().Int("message", parsed+1).Err(err).Msg("failed to parse MBOX message")
		} else {
			batch = append(batch, msg)
		}
		parsed++
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		bytesProcessed += int64(len(line) + 1)

		// Messages are delimited by postmark lines starting with "From "
		if strings.HasPrefix(line, "From ") && current.Len() > 0 {
			consume()
			if len(batch) >= batchSize {
				if err := flush(false); err != nil {
					return err
				}
			}
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading MBOX file: %w", err)
	}

	consume()
	if err := flush(true); err != nil {
		return err
	}

	p.log.Info().
		Str("file", filepath.Base(filename)).
		Int("messages", parsed).
		Int64("bytes", totalBytes).
		Msg("mailbox parsed")
	return nil
}

// Normalize converts a raw message into a pipeline email record. Direction and
// filtering are left for classification.
func Normalize(msg *RawMessage) *models.Email {
	senderEmail := msg.From
	var senderName string
	if addr, err := mail.ParseAddress(msg.From); err == nil {
		senderEmail = addr.Address
		senderName = addr.Name
	}

	email := &models.Email{
		MessageID:         CleanMessageID(msg.MessageID),
		SenderEmail:       strings.ToLower(strings.TrimSpace(senderEmail)),
		SenderName:        senderName,
		Subject:           msg.Subject,
		NormalizedSubject: classify.NormalizeSubject(msg.Subject),
		BodyText:          msg.Body,
		ReceivedAt:        msg.Date,
		Direction:         models.DirectionUnknown,
		FilteringStatus:   models.FilteringPending,
	}

	if threadID := ThreadID(msg); threadID != "" {
		email.ThreadID = &threadID
	}

	return email
}

// ThreadID derives a stable thread identifier from the message headers. The
// first Message-ID in References is the thread root; a message with no
// threading headers roots its own thread.
func ThreadID(msg *RawMessage) string {
	if refs := strings.Fields(msg.References); len(refs) > 0 {
		return CleanMessageID(refs[0])
	}
	if msg.InReplyTo != "" {
		return CleanMessageID(msg.InReplyTo)
	}
	return CleanMessageID(msg.MessageID)
}

// CleanMessageID strips the angle brackets RFC 5322 wraps around Message-IDs
func CleanMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

func (p *Parser) parseMessage(r io.Reader) (*RawMessage, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	header := msg.Header
	raw := &RawMessage{
		MessageID:  header.Get("Message-ID"),
		Subject:    decodeHeader(header.Get("Subject")),
		From:       decodeHeader(header.Get("From")),
		To:         header.Get("To"),
		InReplyTo:  header.Get("In-Reply-To"),
		References: header.Get("References"),
	}

	if dateStr := header.Get("Date"); dateStr != "" {
		if date, err := mail.ParseDate(dateStr); err == nil {
			raw.Date = date
		}
	}
	if raw.Date.IsZero() {
		raw.Date = time.Now()
	}

	body, err := extractBody(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to extract body: %w", err)
	}
	raw.Body = body

	return raw, nil
}

func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(msg.Body, params["boundary"])
	}

	return decodePart(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
}

// extractMultipartBody prefers text/plain parts, falling back to stripped HTML
func extractMultipartBody(body io.Reader, boundary string) (string, error) {
	mr := multipart.NewReader(body, boundary)
	var textParts []string
	var htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		partContentType := part.Header.Get("Content-Type")
		mediaType, params, _ := mime.ParseMediaType(partContentType)

		switch {
		case strings.HasPrefix(mediaType, "text/plain"):
			content, err := decodePart(part, part.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				textParts = append(textParts, content)
			}
		case strings.HasPrefix(mediaType, "text/html"):
			content, err := decodePart(part, part.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				htmlParts = append(htmlParts, content)
			}
		case strings.HasPrefix(mediaType, "multipart/"):
			if nestedBoundary, ok := params["boundary"]; ok {
				nested, err := extractMultipartBody(part, nestedBoundary)
				if err == nil && nested != "" {
					textParts = append(textParts, nested)
				}
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n\n"), nil
	}
	if len(htmlParts) > 0 {
		return stripHTML(strings.Join(htmlParts, "\n\n")), nil
	}
	return "", nil
}

func decodePart(body io.Reader, transferEncoding string) (string, error) {
	reader := body
	switch strings.ToLower(transferEncoding) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// stripHTML reduces an HTML body to readable text
func stripHTML(html string) string {
	html = removeTagWithContent(html, "script")
	html = removeTagWithContent(html, "style")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
		"<br>", "\n",
		"<br/>", "\n",
		"<br />", "\n",
		"</p>", "\n\n",
		"</div>", "\n",
	)
	html = replacer.Replace(html)

	var result strings.Builder
	inTag := false
	for _, char := range html {
		switch {
		case char == '<':
			inTag = true
		case char == '>':
			inTag = false
		case !inTag:
			result.WriteRune(char)
		}
	}

	text := strings.TrimSpace(result.String())
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func removeTagWithContent(html, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"

	for {
		lower := strings.ToLower(html)
		start := strings.Index(lower, openTag)
		if start == -1 {
			break
		}
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			break
		}
		end += start + len(closeTag)
		html = html[:start] + html[end:]
	}
	return html
}

func decodeHeader(header string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
