// Package proxy loads outbound proxy endpoints from a proxies.txt-style
// file: one endpoint per line, blank lines and #-comments skipped.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Parse turns a single endpoint descriptor into a proxy URL. Bare
// host:port entries are treated as HTTP proxies.
func Parse(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty proxy endpoint")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy endpoint %q: %w", s, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy endpoint %q has no host", s)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("proxy endpoint %q has unsupported scheme %q", s, u.Scheme)
	}

	return u, nil
}

// LoadFile reads a proxy list file and parses every entry. A malformed
// line fails the whole load; a half-usable proxy list is worse than none.
func LoadFile(path string) ([]*url.URL, error) {
	f, err := os.Open(path) //nolint:gosec // proxy path from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening proxy file: %w", err)
	}
	defer f.Close()

	var proxies []*url.URL

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		u, err := Parse(text)
		if err != nil {
			return nil, fmt.Errorf("proxy file line %d: %w", line, err)
		}
		proxies = append(proxies, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading proxy file: %w", err)
	}

	return proxies, nil
}
