package meme

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// IsStatic classifies a record by structural inspection only, no network.
// Policy: the filtered subset must be guaranteed static, so anything not
// confidently recognized as a static format is excluded. GIFs count as
// animated regardless of frame count.
func IsStatic(r Record) bool {
	if len(r.Data) > 0 {
		return staticBySignature(r.Data)
	}
	if ext := refExtension(r); ext != "" {
		switch ext {
		case ".png", ".jpg", ".jpeg", ".bmp":
			return true
		case ".webp":
			// Extension alone cannot rule out an animated WebP.
			return false
		default:
			return false
		}
	}
	return false
}

func staticBySignature(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return false
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return true
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return true
	case bytes.HasPrefix(data, []byte("BM")):
		return true
	case isWebP(data):
		return !webpAnimated(data)
	}
	return false
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}

// webpAnimated checks the VP8X feature flags for the animation bit.
func webpAnimated(data []byte) bool {
	if len(data) < 21 || !bytes.Equal(data[12:16], []byte("VP8X")) {
		return false
	}
	return data[20]&0x02 != 0
}

// refExtension pulls a lowercase extension from the name or URL path.
func refExtension(r Record) string {
	if ext := strings.ToLower(path.Ext(r.Name)); ext != "" {
		return ext
	}
	if r.URL == "" {
		return ""
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return strings.ToLower(path.Ext(r.URL))
	}
	return strings.ToLower(path.Ext(u.Path))
}

// FilterStatic returns the records that pass IsStatic, preserving order.
func FilterStatic(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if IsStatic(r) {
			out = append(out, r)
		}
	}
	return out
}
