// Package logging provides the slog handler shared by the executables.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// TopicKey is the attribute that assigns a record to a topic.
const TopicKey = "topic"

// TopicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled.
type TopicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

// NewTopicHandler enables the given topics; "all" enables every topic.
func NewTopicHandler(inner slog.Handler, topics []string) *TopicHandler {
	enabled := make(map[string]bool, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			enabled[t] = true
		}
	}
	return &TopicHandler{inner: inner, topics: enabled}
}

// New builds a debug-level text logger on w filtered by topics.
func New(w io.Writer, verbose bool, topicList string) *slog.Logger {
	var topics []string
	if verbose {
		topics = append(topics, "all")
	}
	if topicList != "" {
		topics = append(topics, strings.Split(topicList, ",")...)
	}
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTopicHandler(inner, topics))
}

func (h *TopicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *TopicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		// Check record-level attrs as fallback.
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == TopicKey {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *TopicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == TopicKey {
			topic = a.Value.String()
		}
	}
	return &TopicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *TopicHandler) WithGroup(name string) slog.Handler {
	return &TopicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}
