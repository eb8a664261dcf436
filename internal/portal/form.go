package portal

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// formAction returns the action of the first <form> in page, resolved against base.
// Entities such as &amp; are decoded by the tokenizer.
func formAction(page []byte, base *url.URL) (string, bool) {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "form" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "action" {
					action := strings.TrimSpace(string(val))
					if action == "" {
						return "", false
					}
					return resolve(base, action), true
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// fragmentCode pulls the raw "code" parameter out of a redirect location's fragment.
func fragmentCode(location string) (string, bool) {
	i := strings.IndexByte(location, '#')
	if i < 0 {
		return "", false
	}
	for _, part := range strings.Split(location[i+1:], "&") {
		k, v, ok := strings.Cut(part, "=")
		if ok && k == "code" && v != "" {
			return v, true
		}
	}
	return "", false
}
