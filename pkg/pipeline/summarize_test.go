package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/transcript"
)

func TestParseSummaryBullets(t *testing.T) {
	text := "- first takeaway here\n- second takeaway here\n* third with asterisk"
	summary := parseSummary(ModeQuick, text)

	assert.Equal(t, []string{
		"first takeaway here",
		"second takeaway here",
		"third with asterisk",
	}, summary.Bullets)
	assert.Empty(t, summary.Sections)
}

func TestParseSummarySections(t *testing.T) {
	text := "## Leader Election\nRaft elects one leader per term.\n\n" +
		"## Log Replication\nFollowers copy the leader log.\n- replication is ordered"
	summary := parseSummary(ModeStandard, text)

	require.Len(t, summary.Sections, 2)
	assert.Equal(t, "Leader Election", summary.Sections[0].Title)
	assert.Contains(t, summary.Sections[0].Content, "one leader per term")
	assert.Equal(t, "Log Replication", summary.Sections[1].Title)
	assert.Equal(t, []string{"replication is ordered"}, summary.Bullets)
}

func TestParseSummaryEducational(t *testing.T) {
	text := "## Overview\nAn introduction to consensus.\n" +
		"## Learning Objectives\n- understand leader election\n- explain log replication\n" +
		"## Key Concepts\n- term: a logical clock epoch\n" +
		"## Practice Questions\n- why does quorum intersection matter?"
	summary := parseSummary(ModeEducational, text)

	assert.Equal(t, []string{"understand leader election", "explain log replication"}, summary.Objectives)
	assert.Equal(t, []string{"term: a logical clock epoch"}, summary.KeyConcepts)
	assert.Equal(t, []string{"why does quorum intersection matter?"}, summary.PracticeQuestions)
}

func TestParseSummaryEducationalBackfill(t *testing.T) {
	// A model that ignored the section instructions still yields objectives.
	text := "- first point\n- second point\n- third point\n- fourth point"
	summary := parseSummary(ModeEducational, text)

	assert.Len(t, summary.Objectives, 3)
}

func TestSummarizeEmptyResponseFails(t *testing.T) {
	cfg := testPipelineConfig()
	stage := NewSummarizeStage(&scriptedProvider{text: "   \n"}, nil, cfg, testLogger())

	state := NewState("video-1", "", ModeQuick, Features{}, "")
	state.Transcript = lectureSegments()

	err := stage.Run(context.Background(), state)
	require.Error(t, err)

	var pe *llms.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestSummarizeWithoutTranscriptFails(t *testing.T) {
	cfg := testPipelineConfig()
	stage := NewSummarizeStage(&scriptedProvider{text: lectureSummaryText}, nil, cfg, testLogger())

	state := NewState("video-1", "", ModeQuick, Features{}, "")
	err := stage.Run(context.Background(), state)
	assert.True(t, transcript.IsNoTranscript(err))
}

func TestSummaryPromptShapes(t *testing.T) {
	assert.Contains(t, summaryPrompt(ModeQuick, "text"), "bullet points")
	assert.Contains(t, summaryPrompt(ModeResearch, "text"), "analytical")
	assert.Contains(t, summaryPrompt(ModeEducational, "text"), "Practice Questions")
	assert.Contains(t, summaryPrompt(ModeStandard, "text"), "structured summary")
}
