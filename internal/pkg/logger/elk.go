// internal/pkg/logger/elk.go
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ELKConfig configures bulk log shipping to Elasticsearch.
type ELKConfig struct {
	URL           string
	IndexPrefix   string
	Username      string
	Password      string
	BatchSize     int
	FlushInterval time.Duration
}

func elkConfigFromEnv(url string) ELKConfig {
	cfg := ELKConfig{
		URL:           url,
		IndexPrefix:   "storeflow",
		Username:      os.Getenv("ELK_USERNAME"),
		Password:      os.Getenv("ELK_PASSWORD"),
		BatchSize:     200,
		FlushInterval: 5 * time.Second,
	}
	if prefix := os.Getenv("ELK_INDEX_PREFIX"); prefix != "" {
		cfg.IndexPrefix = prefix
	}
	if size, err := strconv.Atoi(os.Getenv("ELK_BATCH_SIZE")); err == nil && size > 0 {
		cfg.BatchSize = size
	}
	return cfg
}

// elkDocument is the shape indexed into Elasticsearch. Request-scoped fields
// arrive as ordinary attributes via the context handler.
type elkDocument struct {
	Timestamp time.Time      `json:"@timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ELKHandler forwards every record to the wrapped handler and ships a copy
// to Elasticsearch through a buffered channel. Shipping is lossy under
// backpressure; dropping a log line beats blocking a request.
type ELKHandler struct {
	next   slog.Handler
	config ELKConfig
	queue  chan elkDocument
	client *http.Client
}

// NewELKHandler starts the background shipper and returns the handler.
func NewELKHandler(cfg ELKConfig, next slog.Handler) *ELKHandler {
	h := &ELKHandler{
		next:   next,
		config: cfg,
		queue:  make(chan elkDocument, cfg.BatchSize*4),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	go h.ship()
	return h
}

func (h *ELKHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ELKHandler) Handle(ctx context.Context, record slog.Record) error {
	doc := elkDocument{
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
		Fields:    make(map[string]any, record.NumAttrs()),
	}
	record.Attrs(func(a slog.Attr) bool {
		doc.Fields[a.Key] = a.Value.Any()
		return true
	})

	select {
	case h.queue <- doc:
	default:
	}
	return h.next.Handle(ctx, record)
}

func (h *ELKHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ELKHandler{next: h.next.WithAttrs(attrs), config: h.config, queue: h.queue, client: h.client}
}

func (h *ELKHandler) WithGroup(name string) slog.Handler {
	return &ELKHandler{next: h.next.WithGroup(name), config: h.config, queue: h.queue, client: h.client}
}

// ship drains the queue into bulk requests, flushing on batch size or the
// flush interval, whichever comes first.
func (h *ELKHandler) ship() {
	ticker := time.NewTicker(h.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]elkDocument, 0, h.config.BatchSize)
	for {
		select {
		case doc := <-h.queue:
			batch = append(batch, doc)
			if len(batch) >= h.config.BatchSize {
				h.bulkIndex(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.bulkIndex(batch)
				batch = batch[:0]
			}
		}
	}
}

func (h *ELKHandler) bulkIndex(docs []elkDocument) {
	index := fmt.Sprintf("%s-%s", h.config.IndexPrefix, time.Now().UTC().Format("2006.01.02"))

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		if err := enc.Encode(map[string]any{"index": map[string]string{"_index": index}}); err != nil {
			return
		}
		if err := enc.Encode(doc); err != nil {
			return
		}
	}

	req, err := http.NewRequest(http.MethodPost, h.config.URL+"/_bulk", &body)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if h.config.Username != "" {
		req.SetBasicAuth(h.config.Username, h.config.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "elk bulk index failed: %v\n", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "elk bulk index returned status %d\n", resp.StatusCode)
	}
}
