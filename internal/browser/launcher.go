package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// Launcher starts one Chrome process per Session.
type Launcher struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}
}

var _ crawler.Launcher = (*Launcher)(nil)

// NewLauncher validates cfg and returns a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxSessions > 0 {
		limiter = make(chan struct{}, cfg.MaxSessions)
	}
	return &Launcher{cfg: cfg, logger: logger.Named("browser"), limiter: limiter}, nil
}

// Open launches Chrome with the profile's viewport and user agent. Cancelling
// ctx aborts the wait for a free session slot; once a slot is held the launch
// runs to completion. The returned session outlives ctx and must be closed by
// the caller.
func (l *Launcher) Open(ctx context.Context, profile crawler.DeviceProfile) (crawler.Session, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrSessionStart, err)
	}
	ctx = context.WithoutCancel(ctx)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(profile)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	logger := l.logger.With(zap.String("device", string(profile.Name)))
	shutdown := func() error {
		err := chromedp.Cancel(tabCtx)
		tabCancel()
		allocCancel()
		l.release()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("close browser: %w", err)
		}
		return nil
	}

	// The first Run on a fresh context launches the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = shutdown()
		return nil, fmt.Errorf("%w: launch chrome: %w", crawler.ErrSessionStart, err)
	}

	session := &Session{
		cfg:      l.cfg,
		profile:  profile,
		driver:   chromeDriver{},
		logger:   logger,
		tabCtx:   tabCtx,
		shutdown: shutdown,
	}
	setupCtx, cancel := session.opContext(ctx, l.cfg.navTimeout())
	defer cancel()
	if err := session.setup(setupCtx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: %w", crawler.ErrSessionStart, err)
	}
	logger.Debug("browser session opened",
		zap.Int64("width", profile.Width), zap.Int64("height", profile.Height))
	return session, nil
}

func (s *Session) setup(ctx context.Context) error {
	if s.profile.UserAgent != "" {
		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(s.profile.UserAgent).Do(ctx)
		}))
		if err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if err := s.applyViewport(ctx, s.profile.Viewport()); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	return nil
}

func (l *Launcher) allocatorOptions(profile crawler.DeviceProfile) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.IgnoreCertErrors,
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(int(profile.Width), int(profile.Height)),
	)
	if profile.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(profile.UserAgent))
	}
	if !l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

func (l *Launcher) acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("browser slot wait canceled: %w", err)
	}
	select {
	case l.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (l *Launcher) release() {
	if l.limiter == nil {
		return
	}
	select {
	case <-l.limiter:
	default:
	}
}
