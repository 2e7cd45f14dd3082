package content

import "strings"

// Transport encoding tokens.
const (
	EncodingGzip     = "gzip"
	EncodingIdentity = "identity"
)

// canonicalEncoding normalises header aliases to their canonical token.
func canonicalEncoding(name string) string {
	if name == "x-gzip" {
		return EncodingGzip
	}
	return name
}

// AcceptedEncodings parses an Accept-Encoding header into the set of
// encodings the requester supports. Quality parameters are discarded and
// "identity" is always a member. An empty header yields {identity}.
//
// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Accept-Encoding
func AcceptedEncodings(header string) map[string]bool {
	set := map[string]bool{EncodingIdentity: true}
	if header == "" {
		return set
	}
	for _, part := range strings.Split(header, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[canonicalEncoding(name)] = true
	}
	return set
}

// AcceptsAll reports whether the accepted set covers every encoding in the
// stored chain, either explicitly or via a wildcard.
func AcceptsAll(accepted map[string]bool, encodings []string) bool {
	if accepted["*"] {
		return true
	}
	for _, enc := range encodings {
		if !accepted[enc] {
			return false
		}
	}
	return true
}

// ParseContentEncoding parses a Content-Encoding header into an ordered
// encoding chain (outermost last, per HTTP semantics). Aliases are
// canonicalised and a trailing "identity" is dropped. An empty header
// yields an empty chain.
//
// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Content-Encoding
func ParseContentEncoding(header string) []string {
	if header == "" {
		return nil
	}
	var list []string
	for _, part := range strings.Split(header, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		list = append(list, canonicalEncoding(name))
	}
	for len(list) > 0 && list[len(list)-1] == EncodingIdentity {
		list = list[:len(list)-1]
	}
	return list
}
