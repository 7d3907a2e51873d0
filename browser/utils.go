package browser

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

func IsValidURL(u string) (bool, error) {
	if u == "" {
		return false, errors.New("url cannot be empty")
	} else if parsed, err := url.ParseRequestURI(u); err != nil {
		return false, errors.Wrap(err, "error parsing url")
	} else if parsed.Host == "" && parsed.Scheme != "about" && parsed.Scheme != "file" {
		return false, errors.Errorf("url %s has no host", u)
	}
	return true, nil
}

// GetCanonicalURL adds an https scheme to bare hosts such as "google.com".
func GetCanonicalURL(u string) (string, error) {
	u = strings.TrimSpace(u)
	if u == "" {
		return "", errors.New("url cannot be empty")
	}
	if !strings.Contains(u, "://") && !strings.HasPrefix(u, "about:") {
		u = "https://" + u
	}
	if _, err := url.Parse(u); err != nil {
		return "", errors.Wrap(err, "error parsing url")
	}
	return u, nil
}
