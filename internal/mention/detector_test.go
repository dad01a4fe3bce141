// ABOUTME: Tests for agent mention detection
// ABOUTME: Covers direct mentions, greetings, aliases, and substring non-matches

package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStefDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector("stef", []string{"stef-bot"}, nil)
	require.NoError(t, err)
	return d
}

func TestDetector_Matches(t *testing.T) {
	d := newStefDetector(t)

	cases := []struct {
		text string
		want bool
	}{
		{"@stef help", true},
		{"hey stef, question", true},
		{"hi stef can you summarize", true},
		{"hello stef", true},
		{"stef what do you think?", true},
		{"ask stef-bot about it", true},
		{"STEF", true},
		{"Stef", true},
		{"can you ping @Stef for me", true},

		{"stefan wrote this", false},
		{"forestef", false},
		{"", false},
		{"nothing to see here", false},
		{"the festival was fun", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, d.IsAddressedToAgent(tc.text), "text: %q", tc.text)
	}
}

func TestDetector_TriggerKinds(t *testing.T) {
	d := newStefDetector(t)

	trigger, ok := d.Detect("@stef help")
	require.True(t, ok)
	assert.Equal(t, TriggerDirectMention, trigger.Kind)

	trigger, ok = d.Detect("hey stef, question")
	require.True(t, ok)
	assert.Equal(t, TriggerGreeting, trigger.Kind)

	trigger, ok = d.Detect("ask stef-bot about it")
	require.True(t, ok)
	assert.Equal(t, TriggerAlias, trigger.Kind)

	trigger, ok = d.Detect("stef what do you think")
	require.True(t, ok)
	assert.Equal(t, TriggerBareName, trigger.Kind)
}

func TestDetector_Deterministic(t *testing.T) {
	d := newStefDetector(t)

	for i := 0; i < 3; i++ {
		assert.True(t, d.IsAddressedToAgent("@stef help"))
		assert.False(t, d.IsAddressedToAgent("stefan wrote this"))
	}
}

func TestNewDetector_RequiresName(t *testing.T) {
	_, err := NewDetector("", nil, nil)
	assert.Error(t, err)

	_, err = NewDetector("   ", nil, nil)
	assert.Error(t, err)
}

func TestNewDetector_CustomGreetings(t *testing.T) {
	d, err := NewDetector("stef", nil, []string{"yo"})
	require.NoError(t, err)

	trigger, ok := d.Detect("yo stef")
	require.True(t, ok)
	assert.Equal(t, TriggerGreeting, trigger.Kind)
}
