package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/studynotes-cli/pkg/captions"
	"github.com/otherjamesbrown/studynotes-cli/pkg/chunking"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/generation"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/summarize"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

var sectionTitleRe = regexp.MustCompile(`Section Title: ([^\n]+)`)

// echoGen answers each prompt with the section title it was given.
func echoGen(calls *int32) generation.Generator {
	return generation.Func(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(calls, 1)
		m := sectionTitleRe.FindStringSubmatch(prompt)
		if m == nil {
			return "", errors.New("no title in prompt")
		}
		return "notes for " + m[1], nil
	})
}

func newPipeline(gen generation.Generator, opts ...Option) *Pipeline {
	return New(
		sections.NewDetector(sections.DefaultHeuristics()),
		summarize.New(gen, chunking.New(chunking.DefaultMaxWords)),
		opts...,
	)
}

func arrayLectureEntries() []transcript.Entry {
	return []transcript.Entry{
		transcript.MustEntry("intro", 0, 2),
		transcript.MustEntry("now let's talk about arrays", 2, 3),
		transcript.MustEntry("arrays store data", 5, 4),
	}
}

func TestSummarizeVideo_EmptyReturnsSentinel(t *testing.T) {
	var calls int32

	doc, err := newPipeline(echoGen(&calls)).SummarizeVideo(context.Background(), nil, "Anything")

	require.NoError(t, err)
	assert.Equal(t, NoTranscriptSentinel, doc)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSummarizeVideo_ShortTranscriptUsesFallbackParts(t *testing.T) {
	var calls int32

	doc, err := newPipeline(echoGen(&calls)).SummarizeVideo(context.Background(), arrayLectureEntries(), "")

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, strings.HasPrefix(doc, "# 📹 Video Summary: Educational Video\n"))
	assert.Contains(t, doc, "**Duration:** 0:09 | **Sections:** 3")
	assert.Contains(t, doc, "1. **Part 1** (0:00 - 0:02)")
	assert.Contains(t, doc, "2. **Part 2** (0:02 - 0:05)")
	assert.Contains(t, doc, "3. **Part 3** (0:05 - 0:09)")
	assert.Contains(t, doc, "## Section 2: Part 2\n**Timestamp:** 0:02 - 0:05\n\nnotes for Part 2")

	p1 := strings.Index(doc, "## Section 1: Part 1")
	p2 := strings.Index(doc, "## Section 2: Part 2")
	p3 := strings.Index(doc, "## Section 3: Part 3")
	assert.True(t, p1 < p2 && p2 < p3)
}

func TestRun_Stats(t *testing.T) {
	var calls int32
	p := newPipeline(echoGen(&calls))
	p.newID = func() string { return "req-fixed" }

	out, err := p.Run(context.Background(), arrayLectureEntries(), "Go Basics")

	require.NoError(t, err)
	assert.Equal(t, "Go Basics", out.Title)
	assert.False(t, out.Sentinel)
	assert.Equal(t, "req-fixed", out.Stats.RequestID)
	assert.Equal(t, 3, out.Stats.Entries)
	assert.Equal(t, 3, out.Stats.Sections)
	assert.Equal(t, 3, out.Stats.Chunks)
	assert.Zero(t, out.Stats.FailedChunks)
	assert.Equal(t, 9.0, out.Stats.TotalDuration)
	assert.True(t, out.Stats.Detection.FallbackUsed)
	require.Len(t, out.Summaries, 3)
}

func TestRun_KeepsRequestIDFromContext(t *testing.T) {
	var calls int32
	ctx := logging.ContextWithRequestID(context.Background(), "from-caller")

	out, err := newPipeline(echoGen(&calls)).Run(ctx, arrayLectureEntries(), "T")

	require.NoError(t, err)
	assert.Equal(t, "from-caller", out.Stats.RequestID)
}

func TestRun_ChunkFailureDegradesToPlaceholder(t *testing.T) {
	gen := generation.Func(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Section Title: Part 2") {
			return "", generation.NewGenerationError("fake", "m", errors.New("boom"))
		}
		return "ok", nil
	})

	out, err := newPipeline(gen).Run(context.Background(), arrayLectureEntries(), "T")

	require.NoError(t, err)
	assert.Equal(t, 1, out.Stats.FailedChunks)
	assert.Contains(t, out.Document, "## Section 2: Part 2\n**Timestamp:** 0:02 - 0:05\n\n"+summarize.Placeholder(2))
	assert.Contains(t, out.Document, "## Section 3: Part 3\n**Timestamp:** 0:05 - 0:09\n\nok")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := generation.Func(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	doc, err := newPipeline(gen, WithMetrics(metrics)).SummarizeVideo(ctx, arrayLectureEntries(), "T")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, doc)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunsTotal.WithLabelValues(observability.StatusCancelled)))
}

func TestRun_SectionConcurrencyKeepsOrder(t *testing.T) {
	gen := generation.Func(func(ctx context.Context, prompt string) (string, error) {
		m := sectionTitleRe.FindStringSubmatch(prompt)
		var n int
		fmt.Sscanf(m[1], "Part %d", &n)
		time.Sleep(time.Duration(10-n) * 3 * time.Millisecond)
		return "notes for " + m[1], nil
	})

	entries := make([]transcript.Entry, 0, 9)
	for i := 0; i < 9; i++ {
		entries = append(entries, transcript.MustEntry(fmt.Sprintf("word %d", i), float64(i*400), 400))
	}

	out, err := newPipeline(gen, WithSectionConcurrency(4)).Run(context.Background(), entries, "T")

	require.NoError(t, err)
	require.Len(t, out.Summaries, 4)
	last := -1
	for i, s := range out.Summaries {
		assert.Equal(t, i+1, s.SectionNumber)
		assert.Equal(t, fmt.Sprintf("notes for Part %d", i+1), s.Summary)
		idx := strings.Index(out.Document, fmt.Sprintf("## Section %d: Part %d", i+1, i+1))
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestSummarizePayload_DecodeFailure(t *testing.T) {
	var calls int32
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	out, err := newPipeline(echoGen(&calls), WithMetrics(metrics)).
		SummarizePayload(context.Background(), "definitely not captions", "T")

	require.Error(t, err)
	assert.ErrorIs(t, err, sterrors.ErrDecodeFailure)
	assert.Equal(t, captions.FormatUnknown, out.Decode.Format)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecodeTotal.WithLabelValues("unknown", observability.StatusFailed)))
}

func TestSummarizePayload_EmptyCaptionsReturnSentinel(t *testing.T) {
	var calls int32

	out, err := newPipeline(echoGen(&calls)).
		SummarizePayload(context.Background(), `{"events":[]}`, "T")

	require.NoError(t, err)
	assert.True(t, out.Sentinel)
	assert.Equal(t, NoTranscriptSentinel, out.Document)
	assert.Equal(t, captions.FormatJSON3, out.Decode.Format)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSummarizePayload_WebVTT(t *testing.T) {
	var calls int32
	raw := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:02.000\nintro\n\n" +
		"00:00:02.000 --> 00:00:05.000\nnow let's talk about arrays\n\n" +
		"00:00:05.000 --> 00:00:09.000\narrays store data\n"

	out, err := newPipeline(echoGen(&calls)).SummarizePayload(context.Background(), raw, "Arrays 101")

	require.NoError(t, err)
	assert.Equal(t, captions.FormatWebVTT, out.Decode.Format)
	assert.Len(t, out.Decode.Entries, 3)
	assert.Contains(t, out.Document, "# 📹 Video Summary: Arrays 101")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPlan(t *testing.T) {
	p := New(
		sections.NewDetector(sections.DefaultHeuristics()),
		summarize.New(generation.Func(nil), chunking.New(2)),
	)

	planned, stats := p.Plan(arrayLectureEntries())

	require.Len(t, planned, 3)
	assert.True(t, stats.FallbackUsed)
	assert.Equal(t, "Part 2", planned[1].Title)
	assert.Equal(t, "0:02", planned[1].Start)
	assert.Equal(t, "0:05", planned[1].End)
	assert.Equal(t, 5, planned[1].Words)
	// A single oversized entry still makes exactly one chunk.
	assert.Equal(t, 1, planned[1].Chunks)
	assert.Equal(t, sections.MethodFallback, planned[1].Method)
}
