// Package util helpers chicos sin dependencias de dominio.
package util

import (
	"strings"
	"unicode/utf8"
)

// MaskNaturalKey oculta una natural key para logs de login fallido.
//
//	alice@example.com -> a***@e***.com
//	+5491155554444    -> ***44
//	bob               -> ***
func MaskNaturalKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	user, domain, isEmail := strings.Cut(s, "@")
	if !isEmail || user == "" {
		if utf8.RuneCountInString(s) <= 4 {
			return "***"
		}
		return "***" + s[len(s)-2:]
	}
	host, tld, _ := strings.Cut(domain, ".")
	out := firstRune(user) + "***@" + firstRune(host) + "***"
	if tld != "" {
		out += "." + tld
	}
	return out
}

func firstRune(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}
