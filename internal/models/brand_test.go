package models_test

import (
	"testing"
	"time"

	"github.com/eminsights/mention-radar/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCadencePeriods(t *testing.T) {
	want := map[models.Cadence]time.Duration{
		models.Every5m:  5 * time.Minute,
		models.Every10m: 10 * time.Minute,
		models.Every15m: 15 * time.Minute,
		models.Every30m: 30 * time.Minute,
		models.Every1h:  time.Hour,
		models.Every2h:  2 * time.Hour,
	}

	require.Len(t, models.Cadences(), len(want))
	for _, c := range models.Cadences() {
		require.True(t, c.Valid())
		require.Equal(t, want[c], c.Period())
	}
}

func TestCadenceInvalid(t *testing.T) {
	for _, raw := range []string{"", "3m", "1d", "hourly"} {
		c := models.Cadence(raw)
		require.False(t, c.Valid())
		require.Zero(t, c.Period())
	}
}

func TestBrandGroupLookup(t *testing.T) {
	brand := models.Brand{
		BrandName: "Acme",
		KeywordGroups: []models.KeywordGroup{
			{ID: "g1", GroupName: "Launch"},
			{ID: "g2", GroupName: "Support"},
		},
	}

	group := brand.Group("g2")
	require.NotNil(t, group)
	require.Equal(t, "Support", group.GroupName)

	// The pointer aliases the embedded group so run-state edits stick.
	group.Status = models.StatusPaused
	require.Equal(t, models.StatusPaused, brand.KeywordGroups[1].Status)

	require.Nil(t, brand.Group("missing"))
}
