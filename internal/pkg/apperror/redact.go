package apperror

import "strings"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"secret":        true,
	"authorization": true,
	"sig":           true,
}

// RedactBody returns a copy of body that is safe to log: token-like fields
// are replaced and email addresses masked.
func RedactBody(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		key := strings.ToLower(k)
		switch {
		case sensitiveKeys[key]:
			out[k] = "[REDACTED]"
		case strings.Contains(key, "email"):
			if s, ok := v.(string); ok {
				out[k] = MaskEmail(s)
			} else {
				out[k] = "[REDACTED]"
			}
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = RedactBody(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
