package sms

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the Twilio request signature on webhooks.
const SignatureHeader = "X-Twilio-Signature"

// Signature computes the X-Twilio-Signature of a form POST: base64 of the
// HMAC-SHA1 over the full URL followed by every sorted key and its value.
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether sig matches the request parameters.
func ValidSignature(authToken, fullURL string, params url.Values, sig string) bool {
	if authToken == "" || sig == "" {
		return false
	}
	expected := Signature(authToken, fullURL, params)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Inbound is an incoming SMS posted by Twilio.
type Inbound struct {
	From       string
	Body       string
	MessageSID string
}

// ParseInbound reads the fields of an inbound message webhook.
func ParseInbound(form url.Values) Inbound {
	return Inbound{
		From:       form.Get("From"),
		Body:       form.Get("Body"),
		MessageSID: form.Get("MessageSid"),
	}
}

var stopWords = map[string]bool{
	"STOP": true, "STOPALL": true, "ARRET": true, "ARRÊT": true,
	"UNSUBSCRIBE": true, "CANCEL": true, "END": true, "QUIT": true,
}

// IsStop reports whether the message body is an opt-out keyword.
func (in Inbound) IsStop() bool {
	word := strings.ToUpper(strings.TrimSpace(in.Body))
	word = strings.TrimRight(word, ".! ")
	return stopWords[word]
}
