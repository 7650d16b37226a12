package mailing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/osteele/liquid"
)

// RenderMode determines how the template engine handles errors
type RenderMode int

const (
	// RenderModeLax returns empty string for missing vars (production sends)
	RenderModeLax RenderMode = iota
	// RenderModeStrict returns error for missing vars (admin preview)
	RenderModeStrict
)

// TemplateService handles Liquid template rendering with caching
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // md5(template) -> *liquid.Template
}

// TemplateValidationError represents a validation issue in a template
type TemplateValidationError struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// RenderResult contains the rendered output and any warnings
type RenderResult struct {
	Output   string                    `json:"output"`
	Warnings []TemplateValidationError `json:"warnings,omitempty"`
	Success  bool                      `json:"success"`
}

// NewTemplateService creates a new template service with custom filters
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerCustomFilters()
	return ts
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

func (ts *TemplateService) registerCustomFilters() {
	// {{ first_name | default: "Bonjour" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Rune-aware so "élodie" becomes "Élodie".
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		r := []rune(strings.TrimSpace(s))
		if len(r) == 0 {
			return ""
		}
		return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
	})

	ts.engine.RegisterFilter("truncate", func(s string, length int) string {
		r := []rune(s)
		if len(r) <= length {
			return s
		}
		if length <= 1 {
			return string(r[:length])
		}
		return string(r[:length-1]) + "…"
	})

	ts.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// {{ estimation.mid | euros }} -> "350 000 €"
	ts.engine.RegisterFilter("euros", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return FormatEuros(f)
	})

	// {{ sent_at | date_fr }} -> "3 mars 2026"
	ts.engine.RegisterFilter("date_fr", func(value interface{}) string {
		t, ok := toTime(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return FormatDateFR(t)
	})
}

// FormatEuros formats an amount the French way, rounded to the euro, with
// non-breaking spaces as thousands separator.
func FormatEuros(f float64) string {
	n := int64(math.Round(f))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune('\u00a0')
		}
		b.WriteRune(c)
	}
	b.WriteString("\u00a0€")
	return b.String()
}

// FormatDateFR formats t as "2 janvier 2026".
func FormatDateFR(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			t, err = time.Parse("2006-01-02", v)
		}
		return t, err == nil
	}
	return time.Time{}, false
}

// Parse compiles a template string and returns any syntax errors
func (ts *TemplateService) Parse(templateStr string) error {
	_, err := ts.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given variables. Compiled templates
// are cached by content hash, so edited templates never hit a stale entry.
func (ts *TemplateService) Render(templateStr string, vars map[string]interface{}) (string, error) {
	sum := md5.Sum([]byte(templateStr))
	key := hex.EncodeToString(sum[:])

	if cached, ok := ts.cache.Load(key); ok {
		return cached.(*liquid.Template).RenderString(vars)
	}

	tpl, err := ts.engine.ParseString(templateStr)
	if err != nil {
		logger.Warn("template: parse error", "error", err)
		return "", fmt.Errorf("parse template: %w", err)
	}
	ts.cache.Store(key, tpl)

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderWithMode processes a template with configurable error handling
func (ts *TemplateService) RenderWithMode(templateStr string, vars map[string]interface{}, mode RenderMode) (*RenderResult, error) {
	result := &RenderResult{Success: true, Warnings: []TemplateValidationError{}}

	if mode == RenderModeStrict {
		result.Warnings = ts.ValidateVariables(templateStr, vars)
		if len(result.Warnings) > 0 {
			result.Success = false
		}
	}

	output, err := ts.Render(templateStr, vars)
	if err != nil {
		if mode == RenderModeStrict {
			return result, err
		}
		result.Output = templateStr
		result.Success = false
		logger.Warn("template: lax mode render warning", "error", err)
		return result, nil
	}

	result.Output = output
	return result, nil
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

// ValidateVariables checks for undefined variables in a template
func (ts *TemplateService) ValidateVariables(templateStr string, vars map[string]interface{}) []TemplateValidationError {
	var errs []TemplateValidationError
	seen := make(map[string]bool)

	for _, match := range varPattern.FindAllStringSubmatch(templateStr, -1) {
		varName := strings.TrimSpace(match[1])
		if seen[varName] || isLiquidKeyword(varName) {
			continue
		}
		seen[varName] = true

		if !variableExists(varName, vars) {
			errs = append(errs, TemplateValidationError{
				Variable: varName,
				Message:  fmt.Sprintf("Variable '%s' is not provided for drip emails", varName),
			})
		}
	}
	return errs
}

func variableExists(varPath string, vars map[string]interface{}) bool {
	var current interface{} = vars
	for _, part := range strings.Split(varPath, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return false
		}
		current, ok = m[part]
		if !ok {
			return false
		}
	}
	return true
}

// ClearCache removes all cached templates
func (ts *TemplateService) ClearCache() {
	ts.cache.Range(func(k, _ any) bool {
		ts.cache.Delete(k)
		return true
	})
}

func isLiquidKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "if", "elsif", "else", "endif", "unless", "endunless",
		"case", "when", "endcase", "for", "endfor", "break", "continue",
		"assign", "capture", "endcapture", "forloop",
		"true", "false", "nil", "null", "blank", "empty",
		"and", "or", "not", "contains", "in":
		return true
	}
	return false
}

// FilterInfo describes a template filter
type FilterInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// GetAvailableFilters returns the custom filters for the template editor.
func (ts *TemplateService) GetAvailableFilters() []FilterInfo {
	return []FilterInfo{
		{Name: "default", Description: "Valeur de repli", Example: `{{ first_name | default: "Bonjour" }}`},
		{Name: "capitalize", Description: "Majuscule initiale", Example: `{{ first_name | capitalize }}`},
		{Name: "truncate", Description: "Tronquer avec points de suspension", Example: `{{ guide_title | truncate: 40 }}`},
		{Name: "urlencode", Description: "Encoder pour une URL", Example: `{{ email | urlencode }}`},
		{Name: "escape", Description: "Échapper le HTML", Example: `{{ first_name | escape }}`},
		{Name: "euros", Description: "Montant en euros", Example: `{{ estimation_mid | euros }}`},
		{Name: "date_fr", Description: "Date en français", Example: `{{ scheduled_for | date_fr }}`},
	}
}
