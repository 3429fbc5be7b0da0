package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/handmark/internal/detector"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Detection is a stored result. Result holds the JSON exactly as it was
// delivered to listeners.
type Detection struct {
	ID            string
	Delegate      string
	InferenceTime int64
	Width         int
	Height        int
	Hands         int
	IsLeftHand    *bool
	Error         string
	Result        []byte
	CreatedAt     time.Time
}

// DetectionRepository provides access to stored detections.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Record stores a delivered result and returns the stored row.
func (r *DetectionRepository) Record(res *detector.DetectionResult) (*Detection, error) {
	data, err := res.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	d := &Detection{
		ID:            uuid.NewString(),
		Delegate:      string(res.Delegate),
		InferenceTime: res.InferenceTime,
		Width:         res.Width,
		Height:        res.Height,
		IsLeftHand:    res.IsLeftHand,
		Error:         res.Error,
		Result:        data,
	}
	if len(res.Landmarks) > 0 {
		d.Hands = 1
	}

	if err := r.Create(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Create inserts a detection. An empty ID is filled with a new UUID.
func (r *DetectionRepository) Create(d *Detection) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()

	var left sql.NullBool
	if d.IsLeftHand != nil {
		left = sql.NullBool{Bool: *d.IsLeftHand, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO detections (id, delegate, inference_time, width, height, hands, is_left_hand, error, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Delegate, d.InferenceTime, d.Width, d.Height, d.Hands, left, d.Error, string(d.Result), d.CreatedAt,
	)
	return err
}

// GetByID retrieves a detection by its ID.
func (r *DetectionRepository) GetByID(id string) (*Detection, error) {
	row := r.db.QueryRow(
		`SELECT id, delegate, inference_time, width, height, hands, is_left_hand, error, result, created_at
		 FROM detections WHERE id = ?`,
		id,
	)

	d, err := scanDetection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns up to limit detections, newest first.
func (r *DetectionRepository) List(limit int) ([]*Detection, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, delegate, inference_time, width, height, hands, is_left_hand, error, result, created_at
		 FROM detections ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}

// Count returns the number of stored detections.
func (r *DetectionRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&n)
	return n, err
}

// Prune deletes detections older than before and returns how many went.
func (r *DetectionRepository) Prune(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM detections WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDetection(row scanner) (*Detection, error) {
	d := &Detection{}
	var (
		left   sql.NullBool
		result string
	)

	err := row.Scan(&d.ID, &d.Delegate, &d.InferenceTime, &d.Width, &d.Height, &d.Hands, &left, &d.Error, &result, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	if left.Valid {
		v := left.Bool
		d.IsLeftHand = &v
	}
	d.Result = []byte(result)
	return d, nil
}
