package mail

import (
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// wordDecoder handles RFC 2047 encoded-words in headers, including
// non-UTF-8 charsets via the IANA registry.
var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.MIME.Encoding(charset)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeHeader decodes an encoded-word header value, returning the raw
// value when decoding fails.
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// readBody extracts the plain-text body from a raw RFC 5322 message.
// Multipart decoding is deliberately shallow: the triage pipeline only
// needs readable text, not attachments.
func readBody(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("message has no body section")
	}

	parsed, err := mail.ReadMessage(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	raw, err := io.ReadAll(parsed.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}

	return strings.TrimSpace(string(raw)), nil
}
