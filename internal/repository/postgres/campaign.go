package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, channel, subject, html_content, sms_body, segment, status,
	recipient_count, sent_count, failed_count, skipped_count, started_at, completed_at,
	created_at, updated_at`

func scanCampaign(s rowScanner) (*domain.Campaign, error) {
	var (
		c                  domain.Campaign
		segment            []byte
		started, completed sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Channel, &c.Subject, &c.HTMLContent, &c.SMSBody,
		&segment, &c.Status, &c.RecipientCount, &c.SentCount, &c.FailedCount, &c.SkippedCount,
		&started, &completed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(segment) > 0 {
		if err := json.Unmarshal(segment, &c.Segment); err != nil {
			return nil, fmt.Errorf("decode segment: %w", err)
		}
	}
	c.StartedAt, c.CompletedAt = timePtr(started), timePtr(completed)
	return &c, nil
}

func segmentArg(s domain.Segment) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode segment: %w", err)
	}
	return string(b), nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	var w where
	if f.Channel != "" {
		w.add("channel = $%d", f.Channel)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.Search != "" {
		w.add("name ILIKE $%d", "%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q, args := w.page(`SELECT `+campaignColumns+` FROM campaigns`+w.sql()+` ORDER BY created_at DESC`,
		clampLimit(f.Limit, 50, 500), f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	seg, err := segmentArg(c.Segment)
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, channel, subject, html_content, sms_body, segment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, c.ID, c.Name, c.Channel, c.Subject, c.HTMLContent, c.SMSBody, seg, c.Status)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// Update only touches draft campaigns.
func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	var s setList
	if u.Name != nil {
		s.add("name", *u.Name)
	}
	if u.Subject != nil {
		s.add("subject", *u.Subject)
	}
	if u.HTMLContent != nil {
		s.add("html_content", *u.HTMLContent)
	}
	if u.SMSBody != nil {
		s.add("sms_body", *u.SMSBody)
	}
	if u.Segment != nil {
		seg, err := segmentArg(*u.Segment)
		if err != nil {
			return err
		}
		s.add("segment", seg)
	}
	if s.empty() {
		return nil
	}
	q, args := s.query("campaigns", id, true)
	res, err := r.db.ExecContext(ctx, q+" AND status = 'draft'", args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrNotEditable)
	}
	return nil
}

// missingOr tells a missing campaign apart from one in the wrong state.
func (r *CampaignRepo) missingOr(ctx context.Context, id string, stateErr error) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return stateErr
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1 AND status <> 'sending'`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrAlreadySending)
	}
	return nil
}

// MarkSending is a compare-and-set from draft, so two concurrent sends of
// the same campaign cannot both win.
func (r *CampaignRepo) MarkSending(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'sending', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOr(ctx, id, campaign.ErrAlreadySending)
	}
	return nil
}

func (r *CampaignRepo) Complete(ctx context.Context, id string, status domain.CampaignStatus, c campaign.Counts, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $2, recipient_count = $3, sent_count = $4,
			failed_count = $5, skipped_count = $6, completed_at = $7, updated_at = $7
		WHERE id = $1`, id, status, c.Recipients, c.Sent, c.Failed, c.Skipped, at)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	return nil
}

// RecordRecipients inserts outcomes with one multi-row statement.
func (r *CampaignRepo) RecordRecipients(ctx context.Context, rows []domain.CampaignRecipient) error {
	if len(rows) == 0 {
		return nil
	}
	var (
		b    strings.Builder
		args = make([]interface{}, 0, len(rows)*6)
	)
	b.WriteString(`INSERT INTO campaign_recipients (campaign_id, lead_id, address, status, error, sent_at) VALUES `)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 6
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, row.CampaignID, row.LeadID, row.Address, row.Status, row.Error, row.SentAt)
	}
	b.WriteString(` ON CONFLICT (campaign_id, lead_id) DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error, sent_at = EXCLUDED.sent_at`)
	if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("record recipients: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListRecipients(ctx context.Context, campaignID string, limit, offset int) ([]domain.CampaignRecipient, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = $1`, campaignID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipients: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, lead_id, address, status, error, sent_at
		FROM campaign_recipients WHERE campaign_id = $1
		ORDER BY sent_at LIMIT $2 OFFSET $3`, campaignID, clampLimit(limit, 100, 1000), offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	out := []domain.CampaignRecipient{}
	for rows.Next() {
		var c domain.CampaignRecipient
		if err := rows.Scan(&c.CampaignID, &c.LeadID, &c.Address, &c.Status, &c.Error, &c.SentAt); err != nil {
			return nil, 0, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
