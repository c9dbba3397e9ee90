package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pointsmith/pointsmith/internal/achievement"
	"github.com/pointsmith/pointsmith/internal/backup"
	"github.com/pointsmith/pointsmith/internal/email"
	"github.com/pointsmith/pointsmith/internal/handler"
	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/middleware"
	"github.com/pointsmith/pointsmith/internal/push"
	"github.com/pointsmith/pointsmith/internal/reading"
	"github.com/pointsmith/pointsmith/internal/redemption"
	"github.com/pointsmith/pointsmith/internal/store"
	ws "github.com/pointsmith/pointsmith/internal/websocket"
)

// Config carries the pieces of the environment the server needs beyond
// the database handle.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PostmarkToken   string
	FromEmail       string
	BaseURL         string
	Backup          backup.Config
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	userH         *handler.UserHandler
	ledgerH       *handler.LedgerHandler
	badgeH        *handler.BadgeHandler
	rewardH       *handler.RewardHandler
	readingH      *handler.ReadingHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	badgeStore := store.NewBadgeStore(db)
	rewardStore := store.NewRewardStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	pointsLedger := ledger.New(db)
	engine := achievement.NewEngine(db, logger.With("component", "achievement"))
	workflow := redemption.New(db, logger.With("component", "redemption"))
	readingSvc := reading.NewService(db, engine, logger.With("component", "reading"))

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	notifier := push.NewNotifier(pushSvc, pushStore, userStore, logger.With("component", "push"))
	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		userH:         handler.NewUserHandler(userStore, logger.With("component", "user")),
		ledgerH:       handler.NewLedgerHandler(pointsLedger, engine, userStore, hub, notifier, logger.With("component", "ledger")),
		badgeH:        handler.NewBadgeHandler(badgeStore, engine, logger.With("component", "badge")),
		rewardH:       handler.NewRewardHandler(rewardStore, userStore, workflow, hub, notifier, emailClient, logger.With("component", "reward")),
		readingH:      handler.NewReadingHandler(readingSvc, userStore, hub, logger.With("component", "reading")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup")),
		backupManager: backupMgr,
		logger:        logger,
	}
}

// BackupManager returns the backup manager so main can start and stop
// its schedule.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Groups and users
	mux.HandleFunc("POST /api/groups", s.userH.CreateGroup)
	mux.HandleFunc("GET /api/groups/{id}/users", s.userH.ListByGroup)
	mux.HandleFunc("GET /api/groups/{id}/leaderboard", s.userH.Leaderboard)
	mux.HandleFunc("POST /api/users", s.userH.Create)
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.HandleFunc("DELETE /api/users/{id}", s.userH.Delete)

	// Parent PINs
	mux.HandleFunc("POST /api/users/{id}/pin", s.userH.SetPIN)
	mux.HandleFunc("DELETE /api/users/{id}/pin", s.userH.ClearPIN)
	mux.HandleFunc("POST /api/users/{id}/pin/verify", s.userH.VerifyPIN)

	// Points ledger
	mux.HandleFunc("POST /api/users/{id}/points/earn", s.ledgerH.Earn)
	mux.HandleFunc("POST /api/users/{id}/points/bonus", s.ledgerH.Bonus)
	mux.HandleFunc("POST /api/users/{id}/points/quiz-bonus", s.ledgerH.QuizBonus)
	mux.HandleFunc("POST /api/users/{id}/points/spend", s.ledgerH.Spend)
	mux.HandleFunc("GET /api/users/{id}/points/balance", s.ledgerH.Balance)
	mux.HandleFunc("GET /api/users/{id}/points/history", s.ledgerH.History)
	mux.HandleFunc("GET /api/users/{id}/points/stats", s.ledgerH.Stats)

	// Badges
	mux.HandleFunc("GET /api/badge-templates", s.badgeH.ListTemplates)
	mux.HandleFunc("POST /api/badge-templates/{id}/import", s.badgeH.ImportTemplate)
	mux.HandleFunc("GET /api/groups/{id}/badges", s.badgeH.ListByGroup)
	mux.HandleFunc("POST /api/badges", s.badgeH.Create)
	mux.HandleFunc("PUT /api/badges/{id}/enabled", s.badgeH.SetEnabled)
	mux.HandleFunc("DELETE /api/badges/{id}", s.badgeH.Delete)
	mux.HandleFunc("GET /api/users/{id}/badges", s.badgeH.ListUnlocked)
	mux.HandleFunc("POST /api/users/{id}/badges/check", s.badgeH.Check)
	mux.HandleFunc("POST /api/users/{id}/badges/unlock", s.badgeH.UnlockManually)
	mux.HandleFunc("GET /api/users/{id}/badges/stats", s.badgeH.Stats)

	// Rewards and redemptions
	mux.HandleFunc("GET /api/reward-templates", s.rewardH.ListTemplates)
	mux.HandleFunc("POST /api/reward-templates/{id}/import", s.rewardH.ImportTemplate)
	mux.HandleFunc("GET /api/groups/{id}/rewards", s.rewardH.ListByGroup)
	mux.HandleFunc("POST /api/rewards", s.rewardH.Create)
	mux.HandleFunc("PUT /api/rewards/{id}/active", s.rewardH.SetActive)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.rewardH.Delete)
	mux.HandleFunc("POST /api/users/{id}/redemptions", s.rewardH.Redeem)
	mux.HandleFunc("POST /api/redemptions/{id}/resolve", s.rewardH.Resolve)
	mux.HandleFunc("GET /api/groups/{id}/redemptions/pending", s.rewardH.Pending)
	mux.HandleFunc("GET /api/users/{id}/redemptions", s.rewardH.History)
	mux.HandleFunc("GET /api/users/{id}/redemptions/stats", s.rewardH.Stats)

	// Reading progress
	mux.HandleFunc("POST /api/users/{id}/books", s.readingH.Start)
	mux.HandleFunc("GET /api/users/{id}/books", s.readingH.ListByUser)
	mux.HandleFunc("GET /api/books/{id}", s.readingH.Get)
	mux.HandleFunc("PUT /api/books/{id}/progress", s.readingH.UpdatePage)
	mux.HandleFunc("DELETE /api/books/{id}", s.readingH.Delete)

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/users/{id}/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)

	// Backups
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("POST /api/backups/run", s.backupH.RunNow)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.Handle(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
