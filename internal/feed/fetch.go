package feed

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const fetchRetries = 3

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newFetchClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// fetchFeed downloads one GTFS-RT payload, retrying transient failures with
// exponential backoff. Retry policy lives here, never in the Decoder.
func (m *Manager) fetchFeed(url string) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if m.apiKey != "" {
			req.Header.Set("x-api-key", m.apiKey)
		}

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	return body, nil
}
