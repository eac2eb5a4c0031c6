package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoststack/license-service/internal/models"
)

type fakeSink struct {
	mu      sync.Mutex
	entries []*models.ValidationLog
	err     error
}

func (f *fakeSink) CreateBatch(ctx context.Context, logs []*models.ValidationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, logs...)
	return nil
}

func (f *fakeSink) all() []*models.ValidationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ValidationLog(nil), f.entries...)
}

func TestLoggerPersistsEntries(t *testing.T) {
	sink := &fakeSink{}
	logger := NewLogger(sink, 10)

	logger.Record(models.ValidationLog{LicenseKey: "A", Success: true, Message: "ok"})
	logger.Record(models.ValidationLog{LicenseKey: "B", Success: false, Message: "License not found"})
	logger.Close()

	entries := sink.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].LicenseKey)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "B", entries[1].LicenseKey)
	assert.False(t, entries[1].Success)
}

func TestLoggerSetsTimestamp(t *testing.T) {
	sink := &fakeSink{}
	logger := NewLogger(sink, 10)

	logger.Record(models.ValidationLog{LicenseKey: "A"})
	logger.Close()

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLoggerTruncatesAgent(t *testing.T) {
	sink := &fakeSink{}
	logger := NewLogger(sink, 10)

	logger.Record(models.ValidationLog{
		LicenseKey: "A",
		UserAgent:  strings.Repeat("x", MaxAgentLength*3),
	})
	logger.Close()

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].UserAgent, MaxAgentLength)
}

func TestLoggerSwallowsSinkErrors(t *testing.T) {
	sink := &fakeSink{err: errors.New("audit store down")}
	logger := NewLogger(sink, 10)

	// Must not panic, block, or surface the error anywhere.
	for i := 0; i < 20; i++ {
		logger.Record(models.ValidationLog{LicenseKey: "A"})
	}
	logger.Close()
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	sink := &fakeSink{}
	logger := NewLogger(sink, 2)

	// More entries than the buffer holds, queued faster than the worker
	// drains in practice; Record must never block regardless.
	for i := 0; i < 1000; i++ {
		logger.Record(models.ValidationLog{LicenseKey: "A"})
	}
	logger.Close()
}
