package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/protocol"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens a connection pool, verifies connectivity and
// runs the schema migration.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		media_item_id VARCHAR(128) PRIMARY KEY,
		hash VARCHAR(128) NOT NULL,
		vector DOUBLE PRECISION[] NOT NULL,
		mains_frequency DOUBLE PRECISION NOT NULL,
		extraction_quality DOUBLE PRECISION NOT NULL,
		duration_ns BIGINT NOT NULL,
		sample_rate INTEGER NOT NULL,
		extracted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_fingerprints_hash ON fingerprints(hash);

	CREATE TABLE IF NOT EXISTS peer_reports (
		id VARCHAR(64) PRIMARY KEY,
		media_item_id VARCHAR(128) NOT NULL,
		peer_ephemeral_id VARCHAR(64) NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		signature BYTEA NOT NULL,
		ephemeral_pub_key BYTEA NOT NULL,
		report_time TIMESTAMP WITH TIME ZONE NOT NULL,
		peer_address VARCHAR(512) NOT NULL,
		proximity_level VARCHAR(16) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_media ON peer_reports(media_item_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveFingerprint upserts the fingerprint row for a media item.
func (s *PostgresStore) SaveFingerprint(ctx context.Context, mediaItemID string, fp *enf.Fingerprint) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO fingerprints
		(media_item_id, hash, vector, mains_frequency, extraction_quality, duration_ns, sample_rate, extracted_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (media_item_id) DO UPDATE SET
		hash = EXCLUDED.hash,
		vector = EXCLUDED.vector,
		mains_frequency = EXCLUDED.mains_frequency,
		extraction_quality = EXCLUDED.extraction_quality,
		duration_ns = EXCLUDED.duration_ns,
		sample_rate = EXCLUDED.sample_rate,
		extracted_at = EXCLUDED.extracted_at,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		mediaItemID,
		fp.Hash,
		pq.Array(fp.Vector),
		fp.MainsFrequency,
		fp.ExtractionQuality,
		fp.Duration.Nanoseconds(),
		fp.SampleRate,
		fp.ExtractedAt,
	)
	return err
}

// LoadFingerprint returns the fingerprint for a media item, or ErrNotFound.
func (s *PostgresStore) LoadFingerprint(ctx context.Context, mediaItemID string) (*enf.Fingerprint, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT hash, vector, mains_frequency, extraction_quality, duration_ns, sample_rate, extracted_at
		FROM fingerprints WHERE media_item_id = $1
	`, mediaItemID)

	var (
		fp         enf.Fingerprint
		vector     pq.Float64Array
		durationNs int64
	)
	err := row.Scan(&fp.Hash, &vector, &fp.MainsFrequency, &fp.ExtractionQuality, &durationNs, &fp.SampleRate, &fp.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fp.Vector = []float64(vector)
	fp.Duration = time.Duration(durationNs)
	return &fp, nil
}

// SavePeerReport upserts one collected report.
func (s *PostgresStore) SavePeerReport(ctx context.Context, report *protocol.PeerReport) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO peer_reports
		(id, media_item_id, peer_ephemeral_id, confidence_score, signature, ephemeral_pub_key, report_time, peer_address, proximity_level)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		report.ID,
		report.MediaItemID,
		report.PeerEphemeralID,
		report.ConfidenceScore,
		[]byte(report.Signature),
		[]byte(report.EphemeralPubKey),
		report.Timestamp,
		report.PeerAddress,
		string(report.ProximityLevel),
	)
	return err
}

// ListPeerReports returns all reports collected for a media item.
func (s *PostgresStore) ListPeerReports(ctx context.Context, mediaItemID string) ([]*protocol.PeerReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, peer_ephemeral_id, confidence_score, signature, ephemeral_pub_key, report_time, peer_address, proximity_level
		FROM peer_reports WHERE media_item_id = $1
		ORDER BY report_time
	`, mediaItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*protocol.PeerReport
	for rows.Next() {
		r := &protocol.PeerReport{MediaItemID: mediaItemID}
		var (
			signature []byte
			pubKey    []byte
			proximity string
		)
		if err := rows.Scan(&r.ID, &r.PeerEphemeralID, &r.ConfidenceScore, &signature, &pubKey, &r.Timestamp, &r.PeerAddress, &proximity); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Signature = signature
		r.EphemeralPubKey = pubKey
		r.ProximityLevel = protocol.ProximityLevel(proximity)
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
