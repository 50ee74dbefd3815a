package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// fetchJSON tries an ordered list of base URLs until one yields a decodable
// 200 response: first success wins. Each attempt races its own timeout; a
// slow or failing endpoint costs at most the timeout, never hangs the call.
// The urls are full request URLs sharing the same path/query.
func fetchJSON(ctx context.Context, client *http.Client, urls []string, timeout time.Duration, out any) error {
	if len(urls) == 0 {
		return errors.New("no endpoints configured")
	}

	var errs []error
	for _, u := range urls {
		if err := fetchOne(ctx, client, u, timeout, out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func fetchOne(ctx context.Context, client *http.Client, url string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// joinAll appends the same path+query to every base URL in order.
func joinAll(bases []string, pathAndQuery string) []string {
	urls := make([]string, 0, len(bases))
	for _, b := range bases {
		urls = append(urls, b+pathAndQuery)
	}
	return urls
}
