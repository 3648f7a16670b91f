package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"duckpond/internal/config"
	"duckpond/internal/domain"
	"duckpond/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookTimeout      = 5 * time.Second
	webhookBatchSize    = 100
)

// hookWorker tails the activity log for one configured endpoint. Every
// worker owns its cursor, so a slow or failing endpoint never delays the
// others. Delivery stops advancing the cursor on the first failed POST,
// which retries that event on the next tick.
type hookWorker struct {
	engine engine.Engine
	hook   config.WebhookConfig
	client *http.Client
	types  map[string]struct{}
	cursor int64
	log    zerolog.Logger
}

func startWebhookDispatcher(e engine.Engine, log zerolog.Logger) {
	if e.Config == nil {
		return
	}
	for _, hook := range e.Config.Webhooks {
		if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		w := newHookWorker(e, hook, log)
		go w.run()
	}
}

func newHookWorker(e engine.Engine, hook config.WebhookConfig, log zerolog.Logger) *hookWorker {
	timeout := webhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	var types map[string]struct{}
	for _, t := range hook.Events {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if types == nil {
			types = make(map[string]struct{})
		}
		types[t] = struct{}{}
	}
	return &hookWorker{
		engine: e,
		hook:   hook,
		client: &http.Client{Timeout: timeout},
		types:  types,
		cursor: -1,
		log:    log.With().Str("webhook", hook.URL).Logger(),
	}
}

func (w *hookWorker) run() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		w.tick(context.Background())
		<-ticker.C
	}
}

func (w *hookWorker) tick(ctx context.Context) {
	if w.cursor < 0 {
		// First tick starts at the current tail so history is not replayed.
		tail, err := w.engine.Repo.LatestEventID(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("webhook: init cursor failed")
			return
		}
		w.cursor = tail
	}
	events, err := w.engine.Repo.EventsAfter(ctx, w.cursor, webhookBatchSize)
	if err != nil {
		w.log.Warn().Err(err).Msg("webhook: fetch events failed")
		return
	}
	for _, evt := range events {
		if w.wants(evt.Type) {
			if err := w.deliver(ctx, evt); err != nil {
				w.log.Warn().Err(err).Msg("webhook: delivery failed")
				return
			}
		}
		w.cursor = evt.ID
	}
}

func (w *hookWorker) wants(evtType string) bool {
	if w.types == nil {
		return true
	}
	_, ok := w.types[evtType]
	return ok
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (w *hookWorker) deliver(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Duckpond-Event", evt.Type)
	req.Header.Set("X-Duckpond-Delivery", strconv.FormatInt(evt.ID, 10))
	if s := strings.TrimSpace(w.hook.Secret); s != "" {
		req.Header.Set("X-Duckpond-Secret", s)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%s responded %d: %s", w.hook.URL, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
