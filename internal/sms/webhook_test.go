package sms

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSignature(t *testing.T) {
	params := url.Values{
		"From":       {"+33612345678"},
		"Body":       {"STOP"},
		"MessageSid": {"SM1"},
	}
	const hookURL = "https://immo.example.fr/api/webhooks/twilio/sms"
	sig := Signature("secret", hookURL, params)

	assert.True(t, ValidSignature("secret", hookURL, params, sig))
	assert.False(t, ValidSignature("other", hookURL, params, sig))
	assert.False(t, ValidSignature("secret", hookURL+"?x=1", params, sig))
	assert.False(t, ValidSignature("", hookURL, params, sig))
	assert.False(t, ValidSignature("secret", hookURL, params, ""))

	params.Set("Body", "Bonjour")
	assert.False(t, ValidSignature("secret", hookURL, params, sig))
}

func TestSignatureIgnoresParamOrder(t *testing.T) {
	a := url.Values{}
	a.Add("To", "+33700000000")
	a.Add("Body", "stop")
	b := url.Values{}
	b.Add("Body", "stop")
	b.Add("To", "+33700000000")
	assert.Equal(t, Signature("k", "https://x", a), Signature("k", "https://x", b))
}

func TestInboundIsStop(t *testing.T) {
	cases := map[string]bool{
		"STOP":        true,
		" stop ":      true,
		"Stop.":       true,
		"arret":       true,
		"Arrêt":       true,
		"STOP SVP":    false,
		"Bonjour":     false,
		"":            false,
		"unsubscribe": true,
	}
	for body, want := range cases {
		in := ParseInbound(url.Values{"From": {"+33612345678"}, "Body": {body}})
		assert.Equal(t, want, in.IsStop(), "body %q", body)
	}
}
