package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskMatches_Sort(t *testing.T) {
	matches := TaskMatches{
		{TaskID: "b", Confidence: 0.4},
		{TaskID: "c", Confidence: 0.95},
		{TaskID: "a", Confidence: 0.4},
	}

	matches.Sort()

	assert.Equal(t, "c", matches[0].TaskID)
	assert.Equal(t, "a", matches[1].TaskID, "ties break by task id")
	assert.Equal(t, "b", matches[2].TaskID)
}

func TestTaskMatches_SortPrefersDescriptiveReason(t *testing.T) {
	matches := TaskMatches{
		{TaskID: "a", Confidence: 0.9, Reason: "sprint"},
		{TaskID: "b", Confidence: 0.9, Reason: "sprint, planning"},
	}

	assert.Equal(t, "b", matches.Best().TaskID)
}

func TestTaskMatches_Best(t *testing.T) {
	assert.Nil(t, TaskMatches{}.Best())

	best := TaskMatches{{TaskID: "x", Confidence: 0.2}, {TaskID: "y", Confidence: 0.8}}.Best()
	require.NotNil(t, best)
	assert.Equal(t, "y", best.TaskID)
}

func TestTaskMatches_TopAndThreshold(t *testing.T) {
	matches := TaskMatches{
		{TaskID: "1", Confidence: 0.9},
		{TaskID: "2", Confidence: 0.7},
		{TaskID: "3", Confidence: 0.5},
	}

	assert.Len(t, matches.Top(2), 2)
	assert.Len(t, matches.Top(10), 3)
	assert.Empty(t, matches.Top(0))

	above := matches.AboveThreshold(0.7)
	require.Len(t, above, 2)
	assert.Equal(t, "2", above[1].TaskID)
}

func TestTaskMatch_Validate(t *testing.T) {
	assert.NoError(t, (&TaskMatch{TaskID: "1", Confidence: 1}).Validate())
	assert.Error(t, (&TaskMatch{Confidence: 0.5}).Validate())
	assert.Error(t, (&TaskMatch{TaskID: "1", Confidence: 1.2}).Validate())
	assert.Error(t, (&TaskMatch{TaskID: "1", Confidence: -0.1}).Validate())
}
