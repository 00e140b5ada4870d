package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	return len(reasons) == 0, reasons
}

// ErrWeakPassword indica que el password no cumple la política.
var ErrWeakPassword = errors.New("weak password")

// Check valida pwd contra la política y la blacklist (bl puede ser nil).
func (p Policy) Check(pwd string, bl *Blacklist) error {
	ok, reasons := p.Validate(pwd)
	if bl.Contains(pwd) {
		ok = false
		reasons = append(reasons, "blacklisted")
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(reasons, ","))
	}
	return nil
}
