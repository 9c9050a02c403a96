//go:build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// =============================================================================
// Listing Integration Tests
// =============================================================================

func TestIntegration_Listing_CRUD(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	url := "https://test.example.com/jobs/" + uuid.New().String()
	listing := &types.Listing{
		URL:          url,
		Title:        "Backend Engineer",
		Company:      "Test Corp",
		PostedDate:   "2024-05-01",
		Skills:       []string{"Go", "PostgreSQL"},
		Requirements: []string{"5 years experience"},
	}

	created, err := db.CreateListing(ctx, listing)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	defer func() { _ = db.DeleteListing(ctx, created.ID) }()

	t.Run("get by id", func(t *testing.T) {
		got, err := db.GetListing(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Backend Engineer", got.Title)
		assert.Equal(t, []string{"Go", "PostgreSQL"}, got.Skills)
	})

	t.Run("get by url", func(t *testing.T) {
		got, err := db.GetListingByURL(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("get by urls", func(t *testing.T) {
		got, err := db.GetListingsByURLs(ctx, []string{url, "https://test.example.com/none"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, created.ID, got[0].ID)
	})

	t.Run("duplicate url rejected", func(t *testing.T) {
		_, err := db.CreateListing(ctx, &types.Listing{URL: url, Title: "Other", Company: "Other"})
		assert.ErrorIs(t, err, ErrDuplicateURL)
	})

	t.Run("missing returns nil", func(t *testing.T) {
		got, err := db.GetListing(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list contains listing", func(t *testing.T) {
		all, err := db.ListListings(ctx)
		require.NoError(t, err)
		found := false
		for _, l := range all {
			if l.ID == created.ID {
				found = true
			}
		}
		assert.True(t, found)
	})
}

// =============================================================================
// Experience Integration Tests
// =============================================================================

func TestIntegration_Experience_CRUD(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	exp := &types.Experience{
		Title:        "Backend Engineer",
		Organization: "Test Corp",
		Type:         types.ExperienceFullTime,
		StartDate:    "2021-03",
		Bullets:      []string{"Built Python microservices", "Led 5 engineers", "Wrote internal docs"},
	}

	created, err := db.CreateExperience(ctx, exp)
	require.NoError(t, err)
	defer func() { _ = db.DeleteExperience(ctx, created.ID) }()

	got, err := db.GetExperience(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, exp.Bullets, got.Bullets, "bullet order preserved")
	assert.Equal(t, "", got.EndDate)
	assert.Equal(t, types.ExperienceFullTime, got.Type)

	// replacing bullets
	exp.Bullets = []string{"Only bullet"}
	exp.EndDate = "2023-01"
	_, err = db.CreateExperience(ctx, exp)
	require.NoError(t, err)

	got, err = db.GetExperience(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Only bullet"}, got.Bullets)
	assert.Equal(t, "2023-01", got.EndDate)

	all, err := db.ListExperiences(ctx)
	require.NoError(t, err)
	for _, e := range all {
		if e.ID == created.ID {
			assert.Equal(t, []string{"Only bullet"}, e.Bullets)
		}
	}

	require.NoError(t, db.DeleteExperience(ctx, created.ID))
	got, err = db.GetExperience(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
