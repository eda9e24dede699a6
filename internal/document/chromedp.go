package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"bjbyte/backend/internal/logger"
)

const defaultChromeTimeout = 30 * time.Second

// A4 in inches, which is what Chrome's print API takes.
const (
	a4Width  = 8.27
	a4Height = 11.69
	margin   = 0.4
)

var ErrEmptyHTML = errors.New("html document is empty")

type ChromeConfig struct {
	// RemoteURL points at a running Chrome DevTools endpoint. Empty launches a local headless browser.
	RemoteURL string
	Timeout   time.Duration
	NoSandbox bool
}

// ChromePDF prints HTML through headless Chrome.
type ChromePDF struct {
	timeout     time.Duration
	log         *logger.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromePDF(cfg ChromeConfig) *ChromePDF {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChromeTimeout
	}
	r := &ChromePDF{
		timeout: cfg.Timeout,
		log:     logger.Default().WithComponent("pdf"),
	}

	if cfg.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return r
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return r
}

func (r *ChromePDF) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, ErrEmptyHTML
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx)
	defer browserCancel()

	// Tie the browser tab to the caller's deadline.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pdf rendering timed out after %v: %w", r.timeout, err)
		}
		r.log.Errorw("chromedp rendering failed", "error", err)
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("render pdf: empty output")
	}

	r.log.Debugw("pdf rendered", "bytes", len(pdf), "duration", time.Since(start))
	return pdf, nil
}

func (r *ChromePDF) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

var _ PDFRenderer = (*ChromePDF)(nil)
