package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

const (
	// webhookTimeout bounds one webhook POST.
	webhookTimeout = 10 * time.Second
	// maxListedFailures caps the failed cases spelled out in one message.
	maxListedFailures = 10
	// maxErrorBody caps how much of a rejected webhook response is kept.
	maxErrorBody = 512
)

type verdict int

const (
	verdictPassed verdict = iota
	verdictFailed
	verdictRecovered
)

// headline is the one-line outcome shared by every notifier.
func headline(s *RunSummary) (string, verdict) {
	switch {
	case s.Status == model.StatusFailed:
		return fmt.Sprintf("%s failed", s.Name), verdictFailed
	case s.FailedCases > 0:
		return fmt.Sprintf("%s: %d case(s) failed", s.Name, s.FailedCases), verdictFailed
	case s.IsRecovery:
		return fmt.Sprintf("%s recovered", s.Name), verdictRecovered
	}
	return fmt.Sprintf("%s passed", s.Name), verdictPassed
}

// listedFailures returns at most maxListedFailures failed cases and how many
// were left out.
func listedFailures(s *RunSummary) ([]FailedCase, int) {
	if len(s.FailedResults) <= maxListedFailures {
		return s.FailedResults, 0
	}
	return s.FailedResults[:maxListedFailures], len(s.FailedResults) - maxListedFailures
}

// postWebhook POSTs payload as JSON. Any status outside ok is an error that
// carries the start of the response body.
func postWebhook(client *http.Client, url, service string, payload any, ok ...int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", service, err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", service, err)
	}
	defer resp.Body.Close()

	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s webhook returned status %d: %s", service, resp.StatusCode, string(body))
}
