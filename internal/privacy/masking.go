package privacy

import (
	"net/url"
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskCallbackURL hides the path and query of a subscriber callback URL,
// keeping scheme and host for log correlation.
// Example: "https://hooks.example.com/private/token123" -> "https://hooks.example.com/***"
func MaskCallbackURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if len(rawURL) <= 8 {
			return strings.Repeat("*", len(rawURL))
		}
		return rawURL[:8] + "***"
	}

	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/***"
}

// MaskSecret fully hides a signing secret, keeping only its length class.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "********"
}

// MaskGroupID masks a group identifier keeping the last 4 characters.
func MaskGroupID(groupID string) string {
	if groupID == "" {
		return ""
	}
	if len(groupID) <= 4 {
		return strings.Repeat("*", len(groupID))
	}
	return strings.Repeat("*", len(groupID)-4) + groupID[len(groupID)-4:]
}
