package datauri

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/vincent-petithory/dataurl"
)

func TestParse_WithHeader(t *testing.T) {
	uri := Parse("data:image/PNG;base64,iVBORw0KGgo=")

	if !uri.Header {
		t.Fatal("expected header to be detected")
	}
	if uri.MediaType != "image/png" {
		t.Errorf("Expected media type 'image/png', got '%s'", uri.MediaType)
	}
	if !uri.Base64 {
		t.Error("Expected base64 flag to be set")
	}
	if uri.Data != "iVBORw0KGgo=" {
		t.Errorf("Expected payload 'iVBORw0KGgo=', got '%s'", uri.Data)
	}
}

func TestParse_WithExtraParams(t *testing.T) {
	uri := Parse("data:image/jpeg;name=cat.jpg;base64,/9j/")
	if uri.MediaType != "image/jpeg" || !uri.Base64 || uri.Data != "/9j/" {
		t.Fatalf("unexpected uri: %+v", uri)
	}
}

func TestParse_Bare(t *testing.T) {
	uri := Parse("iVBORw0KGgo=")
	if uri.Header {
		t.Fatal("expected no header")
	}
	if !uri.Base64 || uri.Data != "iVBORw0KGgo=" {
		t.Fatalf("unexpected uri: %+v", uri)
	}
}

func TestParse_NotBase64(t *testing.T) {
	uri := Parse("data:text/plain,hello")
	if uri.Base64 {
		t.Fatal("expected base64 flag to be unset")
	}
	if _, err := uri.Bytes(); !errors.Is(err, ErrNotBase64) {
		t.Fatalf("expected ErrNotBase64, got %v", err)
	}
}

func TestParse_MissingComma(t *testing.T) {
	uri := Parse("data:image/png;base64")
	if !uri.Header || uri.Data != "" {
		t.Fatalf("unexpected uri: %+v", uri)
	}
	if _, err := uri.Bytes(); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestBytes_PaddingAndWhitespace(t *testing.T) {
	raw := []byte("hello world!!")
	padded := base64.StdEncoding.EncodeToString(raw)
	unpadded := base64.RawStdEncoding.EncodeToString(raw)
	urlSafe := base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe})

	for _, payload := range []string{padded, unpadded, padded[:4] + "\n" + padded[4:]} {
		got, err := Parse(payload).Bytes()
		if err != nil {
			t.Fatalf("decode %q failed: %v", payload, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("decode %q = %q", payload, got)
		}
	}

	got, err := Parse(urlSafe).Bytes()
	if err != nil || !bytes.Equal(got, []byte{0xfb, 0xff, 0xfe}) {
		t.Fatalf("url-safe decode = %v, %v", got, err)
	}
}

func TestBytes_Invalid(t *testing.T) {
	if _, err := Parse("data:image/png;base64,@@@@").Bytes(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	s := Encode("image/jpeg", []byte{1, 2, 3})
	if s != "data:image/jpeg;base64,AQID" {
		t.Fatalf("unexpected encoding %q", s)
	}
	if !HasMediaType(s, "image/jpeg") || HasMediaType(s, "image/png") {
		t.Fatal("HasMediaType mismatch")
	}
}

func TestEncode_ReadableByStrictDecoder(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	s := Encode("image/png", raw)

	du, err := dataurl.DecodeString(s)
	if err != nil {
		t.Fatalf("strict decode failed: %v", err)
	}
	if du.ContentType() != "image/png" || !bytes.Equal(du.Data, raw) {
		t.Fatalf("unexpected data url %s %v", du.ContentType(), du.Data)
	}

	if got := Encode("nonsense", raw); !HasMediaType(got, "application/octet-stream") {
		t.Fatalf("expected octet-stream for invalid media type, got %q", got[:30])
	}
}

func TestParse_StrictAndLenientAgree(t *testing.T) {
	raw := []byte("crunch me, please")
	padded := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(raw)
	unpadded := "data:image/gif;base64," + base64.RawStdEncoding.EncodeToString(raw)
	uppercase := "DATA:image/gif;base64," + base64.StdEncoding.EncodeToString(raw)

	for _, s := range []string{padded, unpadded, uppercase} {
		uri := Parse(s)
		if !uri.Header || uri.MediaType != "image/gif" || !uri.Base64 {
			t.Fatalf("%q: unexpected uri %+v", s, uri)
		}
		got, err := uri.Bytes()
		if err != nil || !bytes.Equal(got, raw) {
			t.Fatalf("%q: decode = %q, %v", s, got, err)
		}
	}
}

func TestSniff(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"png", buf.Bytes(), "image/png"},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, "image/jpeg"},
		{"gif", []byte("GIF89a"), "image/gif"},
		{"tiff", []byte("II*\x00rest"), "image/tiff"},
		{"text", []byte("hello"), ""},
	}
	for _, tc := range cases {
		if got := Sniff(tc.data); got != tc.want {
			t.Errorf("%s: Sniff = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsImageMime(t *testing.T) {
	if !IsImageMime("image/webp") {
		t.Error("expected image/webp to be accepted")
	}
	if IsImageMime("application/pdf") {
		t.Error("expected application/pdf to be rejected")
	}
}
