package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
)

// unsubscribeTTL keeps links in old emails working for a long time.
const unsubscribeTTL = 400 * 24 * time.Hour

// Links builds signed unsubscribe and guide download URLs for emails.
type Links struct {
	signer      *Signer
	siteURL     string
	downloadTTL time.Duration
}

// NewLinks creates a link builder. siteURL is the public API origin.
func NewLinks(signer *Signer, siteURL string, downloadTTL time.Duration) *Links {
	if downloadTTL <= 0 {
		downloadTTL = 30 * 24 * time.Hour
	}
	return &Links{signer: signer, siteURL: strings.TrimRight(siteURL, "/"), downloadTTL: downloadTTL}
}

func (l *Links) UnsubscribeToken(email string) (string, error) {
	tok, _, err := l.signer.Sign(AudienceUnsubscribe, strings.ToLower(strings.TrimSpace(email)), unsubscribeTTL, Claims{})
	return tok, err
}

// UnsubscribeURL returns the one-click unsubscribe URL for email.
func (l *Links) UnsubscribeURL(email string) (string, error) {
	tok, err := l.UnsubscribeToken(email)
	if err != nil {
		return "", err
	}
	return l.siteURL + "/api/unsubscribe?token=" + url.QueryEscape(tok), nil
}

// VerifyUnsubscribe returns the email an unsubscribe token was issued for.
func (l *Links) VerifyUnsubscribe(token string) (string, error) {
	c, err := l.signer.Parse(AudienceUnsubscribe, token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// DownloadToken signs access to a guide for a lead.
func (l *Links) DownloadToken(guideID, leadID string) (string, time.Time, error) {
	return l.signer.Sign(AudienceDownload, guideID, l.downloadTTL, Claims{LeadID: leadID})
}

// GuideDownloadURL returns the gated download URL of g for a lead.
func (l *Links) GuideDownloadURL(g *domain.Guide, leadID string) (string, error) {
	tok, _, err := l.DownloadToken(g.ID, leadID)
	if err != nil {
		return "", err
	}
	return l.siteURL + "/api/guides/" + url.PathEscape(g.Slug) + "/download?token=" + url.QueryEscape(tok), nil
}

// VerifyDownload returns the guide and lead ids of a download token.
func (l *Links) VerifyDownload(token string) (guideID, leadID string, err error) {
	c, err := l.signer.Parse(AudienceDownload, token)
	if err != nil {
		return "", "", err
	}
	return c.Subject, c.LeadID, nil
}
