package browser

import "context"

type contextKey string

const (
	browserKey contextKey = "browser.browser"
	pageKey    contextKey = "browser.page"
)

// WithBrowser adds the visitor's browser to the context
func WithBrowser(ctx context.Context, b *Browser) context.Context {
	return context.WithValue(ctx, browserKey, b)
}

// GetBrowser retrieves the browser from context
func GetBrowser(ctx context.Context) (*Browser, bool) {
	b, ok := ctx.Value(browserKey).(*Browser)
	return b, ok && b != nil
}

// WithPage adds the current page to the context
func WithPage(ctx context.Context, p *Page) context.Context {
	return context.WithValue(ctx, pageKey, p)
}

// GetPage retrieves the current page from context
func GetPage(ctx context.Context) (*Page, bool) {
	p, ok := ctx.Value(pageKey).(*Page)
	return p, ok && p != nil
}
