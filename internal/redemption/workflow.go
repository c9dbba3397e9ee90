package redemption

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

var (
	// ErrRewardNotFound is returned when the reward is missing or inactive.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientBalance is returned when the balance cannot cover
	// the reward's cost.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRedemptionNotFound is returned when the redemption does not exist.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrInvalidStatus is returned for a resolution status other than
	// approved or denied.
	ErrInvalidStatus = errors.New("invalid redemption status")
	// ErrInvalidTransition is returned when resolving a redemption that
	// is no longer pending.
	ErrInvalidTransition = errors.New("redemption already resolved")
)

// Workflow runs the request/approve cycle for rewards. A child's
// request only reserves intent: points leave the ledger when a parent
// approves, inside the same transaction that flips the status, so a
// redemption can never be both approved and unpaid.
type Workflow struct {
	db      *sql.DB
	users   *store.UserStore
	rewards *store.RewardStore
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Workflow {
	return &Workflow{
		db:      db,
		users:   store.NewUserStore(db),
		rewards: store.NewRewardStore(db),
		ledger:  ledger.New(db),
		logger:  logger,
	}
}

// Redeem files a pending request for a reward. The balance check here
// is advisory: it rejects requests the child clearly cannot afford,
// but the authoritative check happens again at approval.
func (w *Workflow) Redeem(userID, rewardID int64, childComment string) (*model.RewardRedemption, error) {
	reward, err := w.rewards.GetByID(rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil || !reward.Active {
		return nil, ErrRewardNotFound
	}

	user, err := w.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.PointsBalance < reward.PointCost {
		return nil, ErrInsufficientBalance
	}

	red, err := w.rewards.CreateRedemption(userID, rewardID, childComment)
	if err != nil {
		return nil, err
	}

	w.logger.Info("redemption requested", "user_id", userID, "reward_id", rewardID, "redemption_id", red.ID)
	return red, nil
}

// Resolve flips a pending redemption to approved or denied. Approval
// deducts the reward's cost through the ledger in the same transaction;
// if the balance no longer covers the cost, nothing changes and the
// request stays pending.
func (w *Workflow) Resolve(redemptionID int64, status, parentComment string) (*model.RewardRedemption, error) {
	if status != model.RedemptionApproved && status != model.RedemptionDenied {
		return nil, ErrInvalidStatus
	}

	red, err := w.rewards.GetRedemptionByID(redemptionID)
	if err != nil {
		return nil, err
	}
	if red == nil {
		return nil, ErrRedemptionNotFound
	}
	if red.Status != model.RedemptionPending {
		return nil, ErrInvalidTransition
	}

	reward, err := w.rewards.GetByID(red.RewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, ErrRewardNotFound
	}

	tx, err := w.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ok, err := store.ResolveTx(tx, redemptionID, status, parentComment)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against a concurrent resolve.
		return nil, ErrInvalidTransition
	}

	if status == model.RedemptionApproved {
		desc := fmt.Sprintf("Redeemed: %s", reward.Title)
		if _, err := ledger.SpendTx(tx, red.UserID, reward.PointCost, desc, "reward", &redemptionID); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return nil, ErrInsufficientBalance
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	w.logger.Info("redemption resolved", "redemption_id", redemptionID, "status", status)
	return w.rewards.GetRedemptionByID(redemptionID)
}

// Pending returns a group's open requests, newest first.
func (w *Workflow) Pending(groupID int64) ([]model.RewardRedemption, error) {
	return w.rewards.PendingByGroup(groupID)
}

// History returns a user's requests, newest first.
func (w *Workflow) History(userID int64) ([]model.RewardRedemption, error) {
	return w.rewards.ListRedemptionsByUser(userID)
}

// Stats summarizes a user's requests.
func (w *Workflow) Stats(userID int64) (*model.RedemptionStats, error) {
	return w.rewards.RedemptionStats(userID)
}
