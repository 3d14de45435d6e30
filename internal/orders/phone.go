package orders

import "strings"

// NormalizePhone reduces a phone to "+digits". An 11-digit number with a
// leading domestic 8 is rewritten to country code 7. It returns "" when
// fewer than 10 digits remain.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 {
		return ""
	}
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	if len(digits) == 10 {
		digits = "7" + digits
	}
	return "+" + digits
}
