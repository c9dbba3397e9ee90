package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

// Notifier fans engine events out to the right browsers: children hear
// about their own badges and resolutions, parents hear about requests
// waiting on them. Delivery is best effort; expired subscriptions are
// pruned as they surface.
type Notifier struct {
	service *Service
	subs    *store.PushStore
	users   *store.UserStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs *store.PushStore, users *store.UserStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: service, subs: subs, users: users, logger: logger}
}

// BadgeUnlocked tells the child about a fresh badge.
func (n *Notifier) BadgeUnlocked(userID int64, badge *model.Badge) {
	n.notifyUser(userID, Payload{
		Title: "Badge unlocked!",
		Body:  fmt.Sprintf("You earned %q", badge.Name),
		URL:   "/badges",
		Tag:   fmt.Sprintf("badge-%d", badge.ID),
	})
}

// RedemptionRequested tells the group's parents a request is waiting.
func (n *Notifier) RedemptionRequested(groupID int64, childName, rewardTitle string) {
	parents, err := n.users.Parents(groupID)
	if err != nil {
		n.logger.Error("list parents for push", "group_id", groupID, "error", err)
		return
	}
	payload := Payload{
		Title: "Reward request",
		Body:  fmt.Sprintf("%s wants to redeem %q", childName, rewardTitle),
		URL:   "/redemptions",
		Tag:   "redemption-pending",
	}
	for _, p := range parents {
		n.notifyUser(p.ID, payload)
	}
}

// RedemptionResolved tells the child how their request went.
func (n *Notifier) RedemptionResolved(userID int64, rewardTitle, status string) {
	body := fmt.Sprintf("Your request for %q was %s", rewardTitle, status)
	n.notifyUser(userID, Payload{
		Title: "Reward request " + status,
		Body:  body,
		URL:   "/redemptions",
	})
}

func (n *Notifier) notifyUser(userID int64, payload Payload) {
	subs, err := n.subs.ListByUser(userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		err := n.service.Send(sub, payload)
		if errors.Is(err, ErrExpired) {
			if err := n.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				n.logger.Error("prune expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			n.logger.Warn("push delivery failed", "user_id", userID, "error", err)
		}
	}
}
