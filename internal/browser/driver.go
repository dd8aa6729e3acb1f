package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// driver is the set of browser primitives a Session is built from.
// Contexts passed in must derive from the session's tab context.
type driver interface {
	navigate(ctx context.Context, rawURL string) (finalURL string, err error)
	contentSize(ctx context.Context) (width, height int64, err error)
	setViewport(ctx context.Context, vp crawler.Viewport, scale float64, mobile bool) error
	screenshot(ctx context.Context) ([]byte, error)
	outerHTML(ctx context.Context) (string, error)
}

const contentSizeScript = `[
	Math.max(document.body ? document.body.scrollWidth : 0, document.documentElement.scrollWidth),
	Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)
]`

type chromeDriver struct{}

func (chromeDriver) navigate(ctx context.Context, rawURL string) (string, error) {
	var finalURL string
	err := chromedp.Run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return finalURL, nil
}

func (chromeDriver) contentSize(ctx context.Context) (int64, int64, error) {
	var dims []float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(contentSizeScript, &dims)); err != nil {
		return 0, 0, fmt.Errorf("measure content: %w", err)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("measure content: unexpected result %v", dims)
	}
	return int64(dims[0]), int64(dims[1]), nil
}

func (chromeDriver) setViewport(ctx context.Context, vp crawler.Viewport, scale float64, mobile bool) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, scale, mobile).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		return nil
	}))
}

func (chromeDriver) screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (chromeDriver) outerHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read dom: %w", err)
	}
	return html, nil
}
