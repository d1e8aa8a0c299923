package authflow

// Strength is the advisory password strength shown next to password fields
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordStrength classifies a candidate password. One point each for
// length >= 8, length >= 12, mixed case, a digit and a special character;
// 0-2 is weak, 3-4 medium, 5 strong.
func PasswordStrength(password string) Strength {
	score := 0
	if len(password) >= 8 {
		score++
	}
	if len(password) >= 12 {
		score++
	}
	c := classify(password)
	if c.upper && c.lower {
		score++
	}
	if c.digit {
		score++
	}
	if c.special {
		score++
	}
	switch {
	case score >= 5:
		return StrengthStrong
	case score >= 3:
		return StrengthMedium
	}
	return StrengthWeak
}
