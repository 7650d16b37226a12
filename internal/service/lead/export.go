package lead

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

const exportPageSize = 500

var exportHeader = []string{
	"id", "created_at", "source", "status", "persona", "first_name", "last_name",
	"email", "phone", "phone_verified", "postal_code", "city", "consent_email",
	"consent_sms", "utm_source", "utm_campaign", "message", "notes",
}

// safeCell stops spreadsheet apps from evaluating visitor input as a
// formula by prefixing it with a quote.
func safeCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

// ExportCSV writes every lead matching f as CSV, paging through the
// repository so large books are not held in memory.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f ListFilter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}

	written := 0
	f.Limit = exportPageSize
	for f.Offset = 0; ; f.Offset += exportPageSize {
		leads, _, err := s.repo.List(ctx, f)
		if err != nil {
			return written, err
		}
		for _, l := range leads {
			rec := []string{
				l.ID,
				l.CreatedAt.Format(time.RFC3339),
				string(l.Source),
				string(l.Status),
				string(l.Persona),
				safeCell(l.FirstName),
				safeCell(l.LastName),
				safeCell(l.Email),
				l.Phone,
				strconv.FormatBool(l.PhoneVerified),
				safeCell(l.PostalCode),
				safeCell(l.City),
				strconv.FormatBool(l.ConsentEmail),
				strconv.FormatBool(l.ConsentSMS),
				safeCell(l.UTMSource),
				safeCell(l.UTMCampaign),
				safeCell(l.Message),
				safeCell(l.Notes),
			}
			if err := cw.Write(rec); err != nil {
				return written, err
			}
			written++
		}
		if len(leads) < exportPageSize {
			break
		}
	}
	cw.Flush()
	return written, cw.Error()
}
