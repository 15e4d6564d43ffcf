package resolvers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Short follows b23.tv share links and resolves wherever they land.
type Short struct{}

func (s *Short) Names() []string {
	return []string{"Short", "b23"}
}

func (s *Short) SupportsUrl(url string) bool {
	return IsUrlHostAndHasPath(url, "b23.tv", true)
}

func (s *Short) Resolve(ctx context.Context, from ResolveFrom) (*Target, error) {
	client := from.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, from.Url, nil)
	if err != nil {
		return nil, err
	}
	if from.UserAgent != "" {
		req.Header.Set("User-Agent", from.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Short: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	final := resp.Request.URL.String()
	if IsUrlHostAndHasPath(final, "b23.tv", false) {
		return nil, fmt.Errorf("Short: %s did not redirect", from.Url)
	}
	for _, r := range registry {
		if r == Resolver(s) {
			continue
		}
		if r.SupportsUrl(final) {
			next := from
			next.Url = final
			return r.Resolve(ctx, next)
		}
	}
	return nil, fmt.Errorf("%w: %s redirects to %s", ErrUnsupported, from.Url, strings.SplitN(final, "?", 2)[0])
}

func init() {
	Register(&Short{})
}
