package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pointsmith/pointsmith/internal/model"
)

var (
	// ErrInvalidAmount is returned when an amount is not strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientBalance is returned when a spend exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 50

const txCols = `id, user_id, amount, kind, description, source, source_id, created_at`

// Ledger is the single source of truth for point movement. Every
// mutation appends a row to point_transactions and adjusts the cached
// users.points_balance inside one SQL transaction, so the cache never
// diverges from the sum of the log.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Earn credits points for a completed activity.
func (l *Ledger) Earn(userID int64, amount int, description, source string, sourceID *int64) (*model.PointTransaction, error) {
	return l.credit(userID, amount, model.KindEarned, description, source, sourceID)
}

// Bonus credits points granted manually by a parent or teacher.
func (l *Ledger) Bonus(userID int64, amount int, description string) (*model.PointTransaction, error) {
	return l.credit(userID, amount, model.KindBonus, description, "", nil)
}

// QuizBonus credits points for a passed quiz. The amount is computed
// by the quiz subsystem.
func (l *Ledger) QuizBonus(userID int64, amount int, description string, quizID *int64) (*model.PointTransaction, error) {
	return l.credit(userID, amount, model.KindQuizBonus, description, "quiz", quizID)
}

func (l *Ledger) credit(userID int64, amount int, kind, description, source string, sourceID *int64) (*model.PointTransaction, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := creditTx(tx, userID, amount, kind, description, source, sourceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return l.getTransaction(id)
}

// EarnTx performs an earned-kind credit inside a caller-owned
// transaction, so the caller can tie the award to another state change
// (a reading milestone update). Nothing is written when the user is
// missing or the amount is invalid.
func EarnTx(tx *sql.Tx, userID int64, amount int, description, source string, sourceID *int64) (int64, error) {
	return creditTx(tx, userID, amount, model.KindEarned, description, source, sourceID)
}

func creditTx(tx *sql.Tx, userID int64, amount int, kind, description, source string, sourceID *int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	result, err := tx.Exec(`UPDATE users SET points_balance = points_balance + ? WHERE id = ?`, amount, userID)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return 0, ErrUserNotFound
	}

	return insertTransaction(tx, userID, amount, kind, description, source, sourceID)
}

// Spend debits points. Fails with ErrInsufficientBalance when the
// cached balance cannot cover the amount; nothing is written in that
// case.
func (l *Ledger) Spend(userID int64, amount int, description, source string, sourceID *int64) (*model.PointTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := SpendTx(tx, userID, amount, description, source, sourceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return l.getTransaction(id)
}

// SpendTx performs a debit inside a caller-owned transaction, so the
// caller can tie the spend to another state change (redemption
// approval). The conditional UPDATE is the double-spend guard: the
// balance row is only decremented when it still covers the amount.
func SpendTx(tx *sql.Tx, userID int64, amount int, description, source string, sourceID *int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int
	err := tx.QueryRow(`SELECT points_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	if balance < amount {
		return 0, ErrInsufficientBalance
	}

	result, err := tx.Exec(
		`UPDATE users SET points_balance = points_balance - ? WHERE id = ? AND points_balance >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return 0, ErrInsufficientBalance
	}

	return insertTransaction(tx, userID, -amount, model.KindSpent, description, source, sourceID)
}

// RecordBadgeUnlockTx appends a zero-amount audit entry for a badge
// unlock inside a caller-owned transaction. It never touches the
// balance.
func RecordBadgeUnlockTx(tx *sql.Tx, userID, badgeID int64, badgeName string) error {
	_, err := insertTransaction(tx, userID, 0, model.KindBadgeUnlock,
		fmt.Sprintf("Unlocked badge: %s", badgeName), "badge", &badgeID)
	return err
}

func insertTransaction(tx *sql.Tx, userID int64, amount int, kind, description, source string, sourceID *int64) (int64, error) {
	var src sql.NullString
	if source != "" {
		src = sql.NullString{String: source, Valid: true}
	}
	var srcID sql.NullInt64
	if sourceID != nil {
		srcID = sql.NullInt64{Int64: *sourceID, Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO point_transactions (user_id, amount, kind, description, source, source_id) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, amount, kind, description, src, srcID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Balance returns the cached balance for a user.
func (l *Ledger) Balance(userID int64) (int, error) {
	var balance int
	err := l.db.QueryRow(`SELECT points_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.PointTransaction, error) {
	var t model.PointTransaction
	var source sql.NullString
	var sourceID sql.NullInt64

	err := scanner.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Description, &source, &sourceID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.Source = source.String
	if sourceID.Valid {
		t.SourceID = &sourceID.Int64
	}
	return &t, nil
}

func (l *Ledger) getTransaction(id int64) (*model.PointTransaction, error) {
	row := l.db.QueryRow(`SELECT `+txCols+` FROM point_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// History returns a user's transactions, newest first. A limit of 0 or
// less applies DefaultHistoryLimit; a negative limit is not exposed to
// callers.
func (l *Ledger) History(userID int64, limit int) ([]model.PointTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return l.history(userID, limit)
}

func (l *Ledger) history(userID int64, limit int) ([]model.PointTransaction, error) {
	query := `SELECT ` + txCols + ` FROM point_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var txs []model.PointTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// Stats aggregates the full history: totals, counts by kind and by
// source, and the 10 most recent transactions.
func (l *Ledger) Stats(userID int64) (*model.LedgerStats, error) {
	txs, err := l.history(userID, -1)
	if err != nil {
		return nil, err
	}

	stats := &model.LedgerStats{
		ByKind:   make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, t := range txs {
		if t.Amount > 0 {
			stats.TotalEarned += t.Amount
		} else {
			stats.TotalSpent += -t.Amount
		}
		stats.ByKind[t.Kind]++
		if t.Source != "" {
			stats.BySource[t.Source]++
		}
	}

	recent := txs
	if len(recent) > 10 {
		recent = recent[:10]
	}
	stats.Recent = recent

	return stats, nil
}

// ActivityDates returns the distinct days (UTC midnight) on which the
// user earned points, newest first. Zero-amount audit entries do not
// count as activity.
func (l *Ledger) ActivityDates(userID int64) ([]time.Time, error) {
	rows, err := l.db.Query(
		`SELECT DISTINCT date(created_at) FROM point_transactions WHERE user_id = ? AND amount > 0 ORDER BY 1 DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan activity date: %w", err)
		}
		d, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse activity date %q: %w", day, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// SourceCount returns how many positive transactions a user has from
// the given source label, e.g. validated tasks.
func (l *Ledger) SourceCount(userID int64, source string) (int, error) {
	var count int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM point_transactions WHERE user_id = ? AND source = ? AND amount > 0`,
		userID, source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by source: %w", err)
	}
	return count, nil
}
