package utils

// MaskSecret keeps enough of a secret to tell two apart in logs.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:2] + "*****"
}
