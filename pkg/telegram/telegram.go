// Package telegram models the boundary with the Telegram Mini App host. The
// bridge itself lives in the webview; the payment core only needs the
// ability to open an external link through it.
package telegram

// LinkOpener is the host-provided capability of opening an external URL
// inside the Mini App environment. Open reports whether the host accepted
// the URL; hosts vary in what they permit, so a false return is routine and
// callers fall back to another mechanism.
type LinkOpener interface {
	Open(url string) bool
}

// NopOpener stands in when no Mini App host is attached, e.g. when the
// storefront runs in a plain browser.
type NopOpener struct{}

func (NopOpener) Open(string) bool { return false }
