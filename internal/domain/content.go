package domain

import "time"

// Guide is a downloadable PDF written for one persona.
type Guide struct {
	ID          string    `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Persona     Persona   `json:"persona" db:"persona"`
	Title       string    `json:"title" db:"title"`
	Subtitle    string    `json:"subtitle,omitempty" db:"subtitle"`
	Description string    `json:"description" db:"description"`
	HTMLContent string    `json:"html_content,omitempty" db:"html_content"`
	PDFKey      string    `json:"pdf_key,omitempty" db:"pdf_key"`
	Published   bool      `json:"published" db:"published"`
	Downloads   int       `json:"downloads" db:"downloads"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasPDF reports whether a rendered PDF is stored for the guide.
func (g *Guide) HasPDF() bool { return g.PDFKey != "" }

// ArticleStatus is the publication state of an article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
)

// Article is a blog post, hand-written or generated.
type Article struct {
	ID              string        `json:"id" db:"id"`
	Slug            string        `json:"slug" db:"slug"`
	Title           string        `json:"title" db:"title"`
	MetaDescription string        `json:"meta_description" db:"meta_description"`
	Content         string        `json:"content" db:"content"`
	Persona         Persona       `json:"persona,omitempty" db:"persona"`
	Keywords        []string      `json:"keywords,omitempty" db:"keywords"`
	Status          ArticleStatus `json:"status" db:"status"`
	Generated       bool          `json:"generated" db:"generated"`
	Sources         []string      `json:"sources,omitempty" db:"sources"`
	PublishedAt     *time.Time    `json:"published_at,omitempty" db:"published_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}
