// Package redirect takes the user to an external payment page through the
// first mechanism the host environment permits. In-app browsers, standalone
// browsers and embedded webviews each allow different things and any single
// mechanism can silently fail, hence the ordered cascade.
package redirect

import (
	"fmt"
	"strings"

	"github.com/MRCriper/tg-bot123/pkg/telegram"
	"go.uber.org/zap"
)

// Opener is one mechanism of opening a URL. Open reports whether the URL
// was handled.
type Opener struct {
	Name string
	Open func(url string) bool
}

// HostOpener adapts the Mini App link capability into the cascade. It goes
// first: inside Telegram it is the only mechanism guaranteed to survive the
// webview's popup policy.
func HostOpener(host telegram.LinkOpener) Opener {
	return Opener{Name: "miniapp", Open: host.Open}
}

// Strategy tries openers in order until one handles the URL.
type Strategy struct {
	logger  *zap.Logger
	openers []Opener
}

func NewStrategy(logger *zap.Logger, openers ...Opener) *Strategy {
	return &Strategy{logger: logger, openers: openers}
}

// Redirect normalizes url and hands it to the first opener that accepts it.
func (s *Strategy) Redirect(url string) error {
	url = Normalize(url)
	for _, opener := range s.openers {
		if opener.Open == nil {
			continue
		}
		if opener.Open(url) {
			s.logger.Debug("redirect handled",
				zap.String("opener", opener.Name), zap.String("url", url))
			return nil
		}
		s.logger.Warn("redirect mechanism refused url", zap.String("opener", opener.Name))
	}
	return fmt.Errorf("redirect: no mechanism handled %q", url)
}

// Normalize prepends https:// to URLs without a recognized scheme.
func Normalize(url string) string {
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "tg://") {
		return url
	}
	return "https://" + url
}
