package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"golang.org/x/sync/errgroup"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a
// webhook secret is configured.
const SignatureHeader = "X-Dcb-Signature"

// WebhookEvent is the payload posted to webhook URLs after a merge.
type WebhookEvent struct {
	Event     string `json:"event"`
	Branch    string `json:"branch"`
	Target    string `json:"target"`
	CommitID  string `json:"commit_id"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Deleted   int    `json:"deleted"`
	Timestamp string `json:"timestamp"`
}

func mergeEvent(result *models.MergeResult, now time.Time) *WebhookEvent {
	event := &WebhookEvent{
		Event:     "merge",
		Branch:    result.Branch,
		Target:    result.Target,
		Created:   result.Created,
		Updated:   result.Updated,
		Deleted:   result.Deleted,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if result.Commit != nil {
		event.CommitID = result.Commit.ShortID()
	}
	return event
}

// WebhookNotifier posts merge events to a fixed set of URLs. Deliveries run
// in the background; Wait blocks until they finish.
type WebhookNotifier struct {
	urls    []string
	secret  []byte
	client  *http.Client
	logger  *slog.Logger
	retries int
	delay   time.Duration // first retry delay, doubled per attempt
	timeout time.Duration // per event, across all URLs and retries
	wg      sync.WaitGroup
}

// NewWebhookNotifier returns nil if urls is empty. An empty secret disables signing.
func NewWebhookNotifier(urls []string, secret string, logger *slog.Logger) *WebhookNotifier {
	if len(urls) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	wn := &WebhookNotifier{
		urls:    urls,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		retries: 2,
		delay:   time.Second,
		timeout: time.Minute,
	}
	if secret != "" {
		wn.secret = []byte(secret)
	}
	return wn
}

// NotifyMerge queues a merge event for delivery. Safe on a nil notifier.
func (wn *WebhookNotifier) NotifyMerge(result *models.MergeResult) {
	if wn == nil || result == nil {
		return
	}
	event := mergeEvent(result, time.Now())

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), wn.timeout)
		defer cancel()
		wn.deliver(ctx, event)
	}()
}

// Wait blocks until queued deliveries finish.
func (wn *WebhookNotifier) Wait() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// deliver posts event to every URL in parallel. A failing URL does not stop the others.
func (wn *WebhookNotifier) deliver(ctx context.Context, event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	var g errgroup.Group
	for _, url := range wn.urls {
		g.Go(func() error {
			if err := wn.post(ctx, url, data); err != nil {
				wn.logger.Warn("webhook: delivery failed", "url", url, "event", event.Event, "error", err)
				return nil
			}
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event)
			return nil
		})
	}
	g.Wait()
}

func (wn *WebhookNotifier) sign(data []byte) string {
	mac := hmac.New(sha256.New, wn.secret)
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// post sends one POST, retrying transport errors and 5xx responses.
func (wn *WebhookNotifier) post(ctx context.Context, url string, data []byte) error {
	var lastErr error
	delay := wn.delay
	for attempt := 0; attempt <= wn.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "dcb/1.0")
		if wn.secret != nil {
			req.Header.Set(SignatureHeader, wn.sign(data))
		}

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		default:
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}
	return lastErr
}
