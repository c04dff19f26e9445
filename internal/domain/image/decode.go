package image

import (
	"encoding/base64"
	"strings"

	"foodcal-server-go/internal/platform/errors"
)

// DecodeBase64 decodes a standard-alphabet base64 image payload.
// A leading "data:<mime>;base64," prefix and ASCII whitespace are tolerated;
// anything else that is not valid padded base64 is rejected.
func DecodeBase64(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)

	if strings.HasPrefix(strings.ToLower(s), "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(strings.ToLower(s[:comma]), ";base64") {
			return nil, errors.New(errors.KindDecode, "image.decode", "data URL is not base64 encoded")
		}
		s = s[comma+1:]
	}

	s = stripWhitespace(s)
	if s == "" {
		return nil, errors.New(errors.KindDecode, "image.decode", "empty image payload")
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(errors.KindDecode, "image.decode", "invalid base64 payload", err)
	}
	return raw, nil
}

func stripWhitespace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n\f\v") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\f', '\v':
			return -1
		}
		return r
	}, s)
}
