package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// Listing Methods
// -----------------------------------------------------------------------------

const listingColumns = `id, url, title, company, domain, location, description,
		posted_date, skills, requirements`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*types.Listing, error) {
	var l types.Listing
	err := row.Scan(&l.ID, &l.URL, &l.Title, &l.Company, &l.Domain, &l.Location,
		&l.Description, &l.PostedDate, &l.Skills, &l.Requirements)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateListing stores a listing. The URL must already be canonical.
// Returns ErrDuplicateURL if the URL is taken.
func (db *DB) CreateListing(ctx context.Context, l *types.Listing) (*types.Listing, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO listings (`+listingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id`,
		l.ID, l.URL, l.Title, l.Company, l.Domain, l.Location, l.Description,
		l.PostedDate, nonNil(l.Skills), nonNil(l.Requirements),
	).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	return l, nil
}

// GetListing retrieves a listing by ID
func (db *DB) GetListing(ctx context.Context, id uuid.UUID) (*types.Listing, error) {
	l, err := scanListing(db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// GetListingByURL retrieves a listing by its canonical URL
func (db *DB) GetListingByURL(ctx context.Context, url string) (*types.Listing, error) {
	l, err := scanListing(db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE url = $1`, url))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing by url: %w", err)
	}
	return l, nil
}

// GetListingsByURLs retrieves every listing whose canonical URL is in urls
func (db *DB) GetListingsByURLs(ctx context.Context, urls []string) ([]types.Listing, error) {
	if len(urls) == 0 {
		return []types.Listing{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to get listings by urls: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

// ListListings returns every stored listing, newest posting first
func (db *DB) ListListings(ctx context.Context) ([]types.Listing, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY posted_date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

// DeleteListing removes a listing by ID
func (db *DB) DeleteListing(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return nil
}

func collectListings(rows pgx.Rows) ([]types.Listing, error) {
	listings := []types.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return listings, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
