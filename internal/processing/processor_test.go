package processing_test

import (
	"testing"
	"time"

	"github.com/eminsights/mention-radar/backend/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "html entities", input: "Tom &amp; Jerry &quot;review&quot;", want: `Tom & Jerry "review"`},
		{name: "leading trailing", input: "  acme phone  ", want: "acme phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.CleanContent(tt.input))
		})
	}
}

func TestMatchesFilters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		include []string
		exclude []string
		want    bool
	}{
		{name: "no filters", content: "anything", want: true},
		{name: "include hit", content: "the Acme Phone launch", include: []string{"acme phone"}, want: true},
		{name: "include miss", content: "unrelated chatter", include: []string{"acme phone"}, want: false},
		{name: "exclude hit", content: "acme phone giveaway scam", include: []string{"acme phone"}, exclude: []string{"scam"}, want: false},
		{name: "exclude wins over include", content: "acme phone scam", include: []string{"acme"}, exclude: []string{"scam"}, want: false},
		{name: "case insensitive", content: "ACME PHONE is great", include: []string{"acme phone"}, want: true},
		{name: "blank terms ignored", content: "anything", include: []string{" "}, exclude: []string{""}, want: true},
		{name: "html escaped content", content: "acme &amp; phone", include: []string{"acme & phone"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.MatchesFilters(tt.content, tt.include, tt.exclude))
		})
	}
}

func TestBuildPostID(t *testing.T) {
	id1 := processing.BuildPostID("youtube", "https://youtube.com/watch?v=abc")
	id2 := processing.BuildPostID("youtube", "https://youtube.com/watch?v=abc")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)

	// Platform casing and padding must not change the identity.
	require.Equal(t, id1, processing.BuildPostID(" YouTube ", "https://youtube.com/watch?v=abc"))

	// Different platforms never collide on the same URL.
	require.NotEqual(t, id1, processing.BuildPostID("reddit", "https://youtube.com/watch?v=abc"))

	// No source URL means no stable identity.
	require.Empty(t, processing.BuildPostID("youtube", ""))
}

func TestParseTimestamp(t *testing.T) {
	ts := processing.ParseTimestamp("2024-02-03T04:05:06Z")
	require.False(t, ts.IsZero())
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), ts.UTC())

	legacy := processing.ParseTimestamp("2024-02-03 04:05:06")
	require.False(t, legacy.IsZero())
	require.Equal(t, 2024, legacy.Year())

	require.True(t, processing.ParseTimestamp("").IsZero())
	require.True(t, processing.ParseTimestamp("invalid").IsZero())
}
