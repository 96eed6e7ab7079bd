// Package datauri parses and builds base64 data URIs of the form
// data:<mime>[;param...];base64,<payload>.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

const scheme = "data:"

// URI is a parsed data URI. Header is false for bare base64 strings, in which
// case Data holds the whole input.
type URI struct {
	Header    bool
	MediaType string
	Base64    bool
	Data      string

	// decoded is set when the URI passed strict RFC 2397 parsing.
	decoded []byte
}

var ErrNotBase64 = errors.New("data uri is not base64 encoded")

// Parse splits s into its header and payload. It never fails: strings without
// a data: scheme are returned as bare payloads, and URIs that strict parsing
// rejects (unpadded or URL-safe payloads, a missing comma) are split by hand.
func Parse(s string) URI {
	if len(s) < len(scheme) || !strings.EqualFold(s[:len(scheme)], scheme) {
		return URI{Data: s, Base64: true}
	}

	meta, data, found := strings.Cut(s[len(scheme):], ",")
	if !found {
		return URI{Header: true, MediaType: strings.ToLower(strings.TrimSpace(meta))}
	}

	if du, err := dataurl.DecodeString(s); err == nil {
		uri := URI{
			Header:    true,
			MediaType: strings.ToLower(du.ContentType()),
			Base64:    du.Encoding == dataurl.EncodingBase64,
			Data:      data,
		}
		if uri.Base64 {
			uri.decoded = du.Data
		}
		return uri
	}

	params := strings.Split(meta, ";")
	uri := URI{
		Header:    true,
		MediaType: strings.ToLower(strings.TrimSpace(params[0])),
		Data:      data,
	}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			uri.Base64 = true
		}
	}

	return uri
}

// HasMediaType reports whether s starts with a data URI header for mediaType,
// e.g. HasMediaType(s, "image/png").
func HasMediaType(s, mediaType string) bool {
	return strings.HasPrefix(s, scheme+mediaType)
}

// Bytes decodes the payload. Whitespace is ignored and padding is optional,
// and both the standard and URL-safe alphabets are accepted.
func (u URI) Bytes() ([]byte, error) {
	if !u.Base64 {
		return nil, ErrNotBase64
	}

	if len(u.decoded) > 0 {
		return u.decoded, nil
	}

	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			return -1
		}
		return r
	}, u.Data)
	payload = strings.TrimRight(payload, "=")

	if payload == "" {
		return nil, fmt.Errorf("empty payload")
	}

	data, err := base64.RawStdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}

	data, urlErr := base64.RawURLEncoding.DecodeString(payload)
	if urlErr == nil {
		return data, nil
	}

	return nil, fmt.Errorf("failed to decode base64: %w", err)
}

// Encode builds a base64 data URI. Media types without a single type/subtype
// separator are written as application/octet-stream.
func Encode(mediaType string, data []byte) string {
	if strings.Count(mediaType, "/") != 1 || strings.ContainsAny(mediaType, ";,") {
		mediaType = "application/octet-stream"
	}
	return dataurl.New(data, mediaType).String()
}
