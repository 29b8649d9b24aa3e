package mapdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// PostgresSource reads map data from two tables:
//
//	map_nodes(id BIGINT PRIMARY KEY, lat DOUBLE PRECISION, lon DOUBLE PRECISION, updated_at TIMESTAMPTZ)
//	map_ways(id BIGINT PRIMARY KEY, node_ids BIGINT[], updated_at TIMESTAMPTZ)
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a source backed by the given pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Name returns the source identifier.
func (s *PostgresSource) Name() string {
	return "postgres"
}

// Version combines the latest update timestamp with the row counts of both tables.
// The counts catch deletions, which leave no updated_at behind.
func (s *PostgresSource) Version(ctx context.Context) (string, error) {
	query := `
		SELECT
			GREATEST(
				(SELECT MAX(updated_at) FROM map_nodes),
				(SELECT MAX(updated_at) FROM map_ways)
			),
			(SELECT COUNT(*) FROM map_nodes),
			(SELECT COUNT(*) FROM map_ways)
	`

	var (
		updatedAt   *time.Time
		nodes, ways int64
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&updatedAt, &nodes, &ways); err != nil {
		return "", loadError(s.Name(), "version", err)
	}
	return tableVersion(updatedAt, nodes, ways), nil
}

func tableVersion(updatedAt *time.Time, nodes, ways int64) string {
	if updatedAt == nil && nodes == 0 && ways == 0 {
		return "empty"
	}
	stamp := "-"
	if updatedAt != nil {
		stamp = updatedAt.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s/n%d/w%d", stamp, nodes, ways)
}

// Load reads every node and way. Rows with NULL coordinates or fewer than two node ids are skipped.
func (s *PostgresSource) Load(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}

	if err := s.loadPoints(ctx, ds); err != nil {
		return nil, loadError(s.Name(), "query nodes", err)
	}
	if err := s.loadWays(ctx, ds); err != nil {
		return nil, loadError(s.Name(), "query ways", err)
	}

	return ds, nil
}

func (s *PostgresSource) loadPoints(ctx context.Context, ds *Dataset) error {
	query := `
		SELECT id, lat, lon
		FROM map_nodes
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			lat, lon *float64
		)
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return err
		}
		if lat == nil || lon == nil {
			ds.Skipped++
			continue
		}
		ds.Points = append(ds.Points, Point{ID: id, Coordinate: geo.Coordinate{Lat: *lat, Lon: *lon}})
	}

	return rows.Err()
}

func (s *PostgresSource) loadWays(ctx context.Context, ds *Dataset) error {
	query := `
		SELECT id, node_ids
		FROM map_ways
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int64
			nodeIDs []int64
		)
		if err := rows.Scan(&id, &nodeIDs); err != nil {
			return err
		}
		if len(nodeIDs) < 2 {
			ds.Skipped++
			continue
		}
		ds.Ways = append(ds.Ways, Way{ID: id, NodeIDs: nodeIDs})
	}

	return rows.Err()
}
