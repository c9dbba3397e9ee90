package store

import (
	"database/sql"
	"fmt"

	"github.com/pointsmith/pointsmith/internal/model"
)

type ReadingStore struct {
	db *sql.DB
}

func NewReadingStore(db *sql.DB) *ReadingStore {
	return &ReadingStore{db: db}
}

const readingCols = `id, user_id, book_title, total_pages, total_points, current_page, current_points, last_milestone, is_finished, created_at, updated_at`

func scanReading(scanner interface{ Scan(...any) error }) (*model.ReadingProgress, error) {
	var r model.ReadingProgress
	err := scanner.Scan(&r.ID, &r.UserID, &r.BookTitle, &r.TotalPages, &r.TotalPoints,
		&r.CurrentPage, &r.CurrentPoints, &r.LastMilestone, &r.IsFinished, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ReadingStore) Create(userID int64, bookTitle string, totalPages, totalPoints int) (*model.ReadingProgress, error) {
	result, err := s.db.Exec(
		`INSERT INTO reading_progress (user_id, book_title, total_pages, total_points) VALUES (?, ?, ?, ?)`,
		userID, bookTitle, totalPages, totalPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reading progress: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReadingStore) GetByID(id int64) (*model.ReadingProgress, error) {
	row := s.db.QueryRow(`SELECT `+readingCols+` FROM reading_progress WHERE id = ?`, id)
	r, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reading progress: %w", err)
	}
	return r, nil
}

// ListByUser returns a user's books, unfinished first, newest first.
func (s *ReadingStore) ListByUser(userID int64) ([]model.ReadingProgress, error) {
	rows, err := s.db.Query(
		`SELECT `+readingCols+` FROM reading_progress WHERE user_id = ? ORDER BY is_finished ASC, updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reading progress: %w", err)
	}
	defer rows.Close()

	var books []model.ReadingProgress
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading progress: %w", err)
		}
		books = append(books, *r)
	}
	return books, rows.Err()
}

const updateProgressQuery = `UPDATE reading_progress SET current_page = ?, current_points = ?, last_milestone = ?, is_finished = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

// UpdateProgress persists the recomputed position after a page update.
func (s *ReadingStore) UpdateProgress(id int64, currentPage, currentPoints, lastMilestone int, isFinished bool) error {
	_, err := s.db.Exec(updateProgressQuery, currentPage, currentPoints, lastMilestone, isFinished, id)
	if err != nil {
		return fmt.Errorf("update reading progress: %w", err)
	}
	return nil
}

// UpdateProgressTx persists the recomputed position inside a
// caller-owned transaction, so it commits together with the points the
// milestone released.
func UpdateProgressTx(tx *sql.Tx, id int64, currentPage, currentPoints, lastMilestone int, isFinished bool) error {
	_, err := tx.Exec(updateProgressQuery, currentPage, currentPoints, lastMilestone, isFinished, id)
	if err != nil {
		return fmt.Errorf("update reading progress: %w", err)
	}
	return nil
}

func (s *ReadingStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM reading_progress WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reading progress: %w", err)
	}
	return nil
}

// --- Aggregates consumed by the badge engine ---

// BooksFinished counts a user's finished books.
func (s *ReadingStore) BooksFinished(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reading_progress WHERE user_id = ? AND is_finished = 1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count finished books: %w", err)
	}
	return count, nil
}

// PagesRead sums a user's current positions across all books.
func (s *ReadingStore) PagesRead(userID int64) (int, error) {
	var pages int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(current_page), 0) FROM reading_progress WHERE user_id = ?`,
		userID,
	).Scan(&pages)
	if err != nil {
		return 0, fmt.Errorf("sum pages read: %w", err)
	}
	return pages, nil
}
