package parseutil

import (
	"mime"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeText turns a response body into a string. The charset declared in the
// Content-Type header wins when it decodes cleanly; otherwise UTF-8 is used if
// valid, and Windows-1252 as the last resort (it maps every byte).
func DecodeText(body []byte, contentType string) string {
	if cs := declaredCharset(contentType); cs != "" {
		if enc, err := htmlindex.Get(cs); err == nil {
			if out, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(out)
			}
		}
	}
	if utf8.Valid(body) {
		return string(body)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
