package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/lead"
)

// LeadRepo implements lead.Repository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, source, status, persona, first_name, last_name, email, phone,
	phone_verified, postal_code, city, message, property_data, estimation,
	guide_id, session_id, consent_email, consent_sms, notes, utm_source,
	utm_campaign, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(s rowScanner) (*domain.Lead, error) {
	var (
		l                  domain.Lead
		property, estimate []byte
		guideID, sessionID sql.NullString
	)
	err := s.Scan(&l.ID, &l.Source, &l.Status, &l.Persona, &l.FirstName, &l.LastName,
		&l.Email, &l.Phone, &l.PhoneVerified, &l.PostalCode, &l.City, &l.Message,
		&property, &estimate, &guideID, &sessionID, &l.ConsentEmail, &l.ConsentSMS,
		&l.Notes, &l.UTMSource, &l.UTMCampaign, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(property) > 0 {
		l.PropertyData = json.RawMessage(property)
	}
	if len(estimate) > 0 {
		l.Estimation = json.RawMessage(estimate)
	}
	if guideID.Valid {
		l.GuideID = &guideID.String
	}
	if sessionID.Valid {
		l.SessionID = &sessionID.String
	}
	return &l, nil
}

// jsonArg passes raw JSON as text so lib/pq does not encode it as bytea.
func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func strPtrArg(p *string) interface{} {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads (id, source, status, persona, first_name, last_name, email, phone,
			phone_verified, postal_code, city, message, property_data, estimation,
			guide_id, session_id, consent_email, consent_sms, notes, utm_source,
			utm_campaign, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, l.ID, l.Source, l.Status, l.Persona, l.FirstName, l.LastName, l.Email, l.Phone,
		l.PhoneVerified, l.PostalCode, l.City, l.Message, jsonArg(l.PropertyData), jsonArg(l.Estimation),
		strPtrArg(l.GuideID), strPtrArg(l.SessionID), l.ConsentEmail, l.ConsentSMS, l.Notes,
		l.UTMSource, l.UTMCampaign, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create lead: %w", err)
	}
	return l.ID, nil
}

func (r *LeadRepo) Get(ctx context.Context, id string) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (r *LeadRepo) List(ctx context.Context, f lead.ListFilter) ([]domain.Lead, int, error) {
	var w where
	if f.Source != "" {
		w.add("source = $%d", f.Source)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.Persona != "" {
		w.add("persona = $%d", f.Persona)
	}
	if f.Since != nil {
		w.add("created_at >= $%d", *f.Since)
	}
	if f.Search != "" {
		w.add(`(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR email ILIKE $%[1]d
			OR phone ILIKE $%[1]d OR postal_code ILIKE $%[1]d)`, "%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	q, args := w.page(`SELECT `+leadColumns+` FROM leads`+w.sql()+` ORDER BY created_at DESC`,
		clampLimit(f.Limit, 50, 10000), f.Offset)
	leads, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	return leads, total, nil
}

func (r *LeadRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *LeadRepo) Update(ctx context.Context, id string, u lead.UpdateFields) error {
	var s setList
	if u.Status != nil {
		s.add("status", *u.Status)
	}
	if u.Notes != nil {
		s.add("notes", *u.Notes)
	}
	if u.Persona != nil {
		s.add("persona", *u.Persona)
	}
	if u.FirstName != nil {
		s.add("first_name", *u.FirstName)
	}
	if u.LastName != nil {
		s.add("last_name", *u.LastName)
	}
	if u.Email != nil {
		s.add("email", *u.Email)
	}
	if s.empty() {
		return nil
	}
	q, args := s.query("leads", id, true)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) FindRecentByPhone(ctx context.Context, phone string, source domain.LeadSource, since time.Time) ([]domain.Lead, error) {
	leads, err := r.query(ctx, `SELECT `+leadColumns+` FROM leads
		WHERE phone = $1 AND source = $2 AND created_at >= $3
		ORDER BY created_at DESC`, phone, source, since)
	if err != nil {
		return nil, fmt.Errorf("find recent leads: %w", err)
	}
	return leads, nil
}

// ListForSegment selects leads reachable on channel. One row per address:
// the newest lead wins when an address was captured several times.
func (r *LeadRepo) ListForSegment(ctx context.Context, seg domain.Segment, channel domain.CampaignChannel) ([]domain.Lead, error) {
	var w where
	if seg.Persona != "" {
		w.add("persona = $%d", seg.Persona)
	}
	if seg.Status != "" {
		w.add("status = $%d", seg.Status)
	}
	if seg.Source != "" {
		w.add("source = $%d", seg.Source)
	}
	addr := "lower(email)"
	switch channel {
	case domain.ChannelSMS:
		addr = "phone"
		w.conds = append(w.conds, "phone <> ''")
		if seg.RequireConsent {
			w.conds = append(w.conds, "consent_sms")
		}
	default:
		w.conds = append(w.conds, "email <> ''")
		if seg.RequireConsent {
			w.conds = append(w.conds, "consent_email")
		}
	}
	leads, err := r.query(ctx, `SELECT `+leadColumns+` FROM (
			SELECT DISTINCT ON (`+addr+`) * FROM leads`+w.sql()+`
			ORDER BY `+addr+`, created_at DESC
		) l ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list segment: %w", err)
	}
	return leads, nil
}

func (r *LeadRepo) Stats(ctx context.Context, since time.Time) (*lead.Stats, error) {
	st := &lead.Stats{
		BySource:  map[string]int{},
		ByStatus:  map[string]int{},
		ByPersona: map[string]int{},
	}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE phone_verified)
		FROM leads`, since).Scan(&st.Total, &st.Recent, &st.PhoneVerified)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}

	groups := []struct {
		col string
		m   map[string]int
	}{{"source", st.BySource}, {"status", st.ByStatus}, {"persona", st.ByPersona}}
	for _, g := range groups {
		col, m := g.col, g.m
		rows, err := r.db.QueryContext(ctx, `SELECT `+col+`, COUNT(*) FROM leads GROUP BY `+col)
		if err != nil {
			return nil, fmt.Errorf("lead stats by %s: %w", col, err)
		}
		for rows.Next() {
			var k string
			var n int
			if err := rows.Scan(&k, &n); err != nil {
				rows.Close()
				return nil, err
			}
			if k == "" {
				k = "none"
			}
			m[k] = n
		}
		rows.Close()
	}
	return st, nil
}
