// Package headless renders JavaScript-driven listing pages with a pool of
// headless Chrome sessions.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned once Close has been called.
var ErrPoolClosed = errors.New("browser pool closed")

// Config controls the browser and its sessions.
type Config struct {
	Sessions      int
	Headless      bool
	UserAgent     string
	RenderTimeout time.Duration
	ExecPath      string
}

// Pool owns one browser process and a fixed set of tabs. Each ListHrefs
// call holds one tab exclusively, so Sessions=1 serializes all rendering.
type Pool struct {
	cfg    Config
	logger *zap.Logger

	sessions chan *session
	render   renderFunc

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	closeOnce     sync.Once
	closed        chan struct{}
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type renderFunc func(ctx context.Context, pageURL, cardSelector string) ([]string, error)

// NewPool launches the browser and opens cfg.Sessions tabs.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.Sessions <= 0 {
		return nil, fmt.Errorf("sessions must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	p := newPool(cfg, logger)
	p.allocCancel = allocCancel
	p.browserCancel = browserCancel
	p.render = p.runChromedp

	for i := 0; i < cfg.Sessions; i++ {
		tabCtx, tabCancel := chromedp.NewContext(browserCtx)
		if err := chromedp.Run(tabCtx, p.sessionSetup()); err != nil {
			tabCancel()
			p.Close()
			return nil, fmt.Errorf("open session %d: %w", i, err)
		}
		p.sessions <- &session{ctx: tabCtx, cancel: tabCancel}
	}
	logger.Info("browser pool ready", zap.Int("sessions", cfg.Sessions), zap.Bool("headless", cfg.Headless))
	return p, nil
}

func newPool(cfg Config, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:           cfg,
		logger:        logger,
		sessions:      make(chan *session, cfg.Sessions),
		allocCancel:   func() {},
		browserCancel: func() {},
		closed:        make(chan struct{}),
	}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func (p *Pool) sessionSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// ListHrefs renders pageURL, waits for cardSelector to appear and returns
// the href of the first anchor inside each matching card, in document order.
// Cards without an anchor are skipped.
func (p *Pool) ListHrefs(ctx context.Context, pageURL, cardSelector string) ([]string, error) {
	sess, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(sess)

	taskCtx, cancelTask := context.WithTimeout(sess.ctx, p.renderTimeout())
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	hrefs, err := p.render(taskCtx, pageURL, cardSelector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render %s: %w", pageURL, ctxErr)
		}
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}
	return hrefs, nil
}

func (p *Pool) runChromedp(ctx context.Context, pageURL, cardSelector string) ([]string, error) {
	script, err := hrefScript(cardSelector)
	if err != nil {
		return nil, err
	}
	var hrefs []string
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(cardSelector, chromedp.ByQuery),
		chromedp.Evaluate(script, &hrefs),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if hrefs == nil {
		hrefs = []string{}
	}
	return hrefs, nil
}

func hrefScript(cardSelector string) (string, error) {
	sel, err := json.Marshal(cardSelector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))
  .map(card => { const a = card.querySelector('a'); return a && a.href ? a.href : null; })
  .filter(href => href !== null)`, sel), nil
}

func (p *Pool) acquire(ctx context.Context) (*session, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case sess := <-p.sessions:
		return sess, nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire browser session: %w", ctx.Err())
	}
}

func (p *Pool) release(sess *session) {
	p.sessions <- sess
}

// Close shuts every tab and the browser process. It is safe to call more
// than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for drained := false; !drained; {
			select {
			case sess := <-p.sessions:
				sess.cancel()
			default:
				drained = true
			}
		}
		p.browserCancel()
		p.allocCancel()
	})
}

func (p *Pool) renderTimeout() time.Duration {
	if p.cfg.RenderTimeout > 0 {
		return p.cfg.RenderTimeout
	}
	return 30 * time.Second
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
