package pdf

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// RodConfig configures the headless browser. ControlURL connects to a
// running Chrome (e.g. a sidecar container); otherwise ChromeBin, or the
// browser found by the launcher, is started on first use.
type RodConfig struct {
	ChromeBin  string
	ControlURL string
	Timeout    time.Duration
}

// RodRenderer prints pages to A4 PDF. One browser is shared by all renders;
// each render uses its own tab.
type RodRenderer struct {
	cfg     RodConfig
	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodRenderer creates a renderer. The browser starts lazily.
func NewRodRenderer(cfg RodConfig) *RodRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &RodRenderer{cfg: cfg}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Set("disable-gpu").NoSandbox(true)
		if r.cfg.ChromeBin != "" {
			l = l.Bin(r.cfg.ChromeBin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("pdf: launch chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("pdf: connect to chrome: %w", err)
	}
	logger.Info("pdf: browser connected")
	r.browser = b
	return b, nil
}

func float(v float64) *float64 { return &v }

// Render loads html in a fresh tab and prints it on A4 with backgrounds.
func (r *RodRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	b, err := r.connect()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("pdf: open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("pdf: set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("pdf: wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		PaperWidth:        float(8.27),
		PaperHeight:       float(11.69),
		MarginTop:         float(0.4),
		MarginBottom:      float(0.4),
		MarginLeft:        float(0.4),
		MarginRight:       float(0.4),
	})
	if err != nil {
		return nil, fmt.Errorf("pdf: print: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("pdf: read stream: %w", err)
	}
	return data, nil
}

// reset drops a browser that stopped answering so the next render
// reconnects.
func (r *RodRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
