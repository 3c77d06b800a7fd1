package summary

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowCompleter struct {
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
	err    error
}

func (s *slowCompleter) Complete(ctx context.Context, req openrouter.Request) (*openrouter.Completion, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	time.Sleep(20 * time.Millisecond)
	return &openrouter.Completion{Model: req.Model, Text: "summary of " + req.Model}, nil
}

func batchFixture(t *testing.T, client Completer, sessions int) (*Service, []Request) {
	t.Helper()
	fs := afero.NewMemMapFs()
	var reqs []Request
	for i := 0; i < sessions; i++ {
		path := filepath.Join(testSessionsRoot, fmt.Sprintf("2025/09/0%d/rollout.jsonl", i+1))
		require.NoError(t, afero.WriteFile(fs, path, []byte(testSession), 0644))
		reqs = append(reqs, Request{SessionPath: path, PromptVariant: "default", Model: testModel})
	}
	svc := NewService(Options{
		Fs:       fs,
		Resolver: &PathResolver{SummariesRoot: testSummariesRoot, SessionsRoot: testSessionsRoot, WorkDir: "/"},
		Client:   client,
	})
	return svc, reqs
}

func TestSummarizeAll_BoundedConcurrency(t *testing.T) {
	client := &slowCompleter{}
	svc, reqs := batchFixture(t, client, 6)

	var reported atomic.Int32
	results := svc.SummarizeAll(context.Background(), reqs, 2, func(Result) { reported.Add(1) })

	require.Len(t, results, 6)
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, reqs[i].SessionPath, r.Request.SessionPath)
		require.NotNil(t, r.Record)
		assert.Equal(t, reqs[i].SessionPath, r.Record.Metadata.SourcePath)
	}
	assert.Equal(t, int32(6), client.calls.Load())
	assert.Equal(t, int32(6), reported.Load())
	assert.LessOrEqual(t, client.peak.Load(), int32(2))
}

func TestSummarizeAll_AuthFailureStopsBatch(t *testing.T) {
	client := &slowCompleter{err: &openrouter.Error{Kind: openrouter.KindAuth, Status: 401, Message: "invalid key"}}
	svc, reqs := batchFixture(t, client, 4)

	results := svc.SummarizeAll(context.Background(), reqs, 1, nil)

	require.Len(t, results, 4)
	assert.True(t, openrouter.IsAuth(results[0].Err))
	for _, r := range results[1:] {
		assert.True(t, errors.Is(r.Err, context.Canceled), "err = %v", r.Err)
	}
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestSummarizeAll_OtherFailuresContinue(t *testing.T) {
	client := &slowCompleter{err: &openrouter.Error{Kind: openrouter.KindValidation, Status: 400, Message: "bad model"}}
	svc, reqs := batchFixture(t, client, 3)

	results := svc.SummarizeAll(context.Background(), reqs, 0, nil)

	for _, r := range results {
		assert.Equal(t, openrouter.KindValidation, openrouter.KindOf(r.Err))
	}
	assert.Equal(t, int32(3), client.calls.Load())
}
