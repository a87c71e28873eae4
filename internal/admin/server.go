package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/config"
	"github.com/digkill/ReferralBot/internal/export"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/service"
)

type Server struct {
	cfg      config.HTTPConfig
	log      zerolog.Logger
	users    *service.UserService
	admin    *service.AdminService
	sender   service.MessageSender
	validate *validator.Validate
	router   *chi.Mux
}

func NewServer(cfg config.HTTPConfig, log zerolog.Logger, users *service.UserService, admin *service.AdminService, sender service.MessageSender) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		log:      log,
		users:    users,
		admin:    admin,
		sender:   sender,
		validate: validator.New(),
		router:   r,
	}
	r.Use(s.accessLog)

	r.Get("/", s.handleIndex)
	r.Post("/add_user", s.handleAddUser)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.BasicAuth("referralbot", map[string]string{cfg.AdminUsername: cfg.AdminPassword}))
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Post("/referrals/payments", s.handleReferralPayment)
		protected.Get("/users/export", s.handleExportUsers)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http shutdown error")
		}
	}()

	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Bot работает!"))
}

type addUserRequest struct {
	TelegramID        int64  `json:"telegram_id"         validate:"required"`
	ChatID            int64  `json:"chat_id"             validate:"required"`
	Name              string `json:"name"                validate:"required"`
	LastName          string `json:"last_name"`
	Username          string `json:"username"`
	InvitedByUsername string `json:"invited_by_username"`
}

type addUserResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	PromoCode string `json:"promo_code"`
}

// handleAddUser is the external registration path into the same store.
func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := s.users.Register(r.Context(), models.NewUser{
		TelegramID:        req.TelegramID,
		ChatID:            req.ChatID,
		Name:              req.Name,
		LastName:          req.LastName,
		Username:          req.Username,
		InvitedByUsername: req.InvitedByUsername,
	}, "http")
	switch {
	case errors.Is(err, service.ErrConflict):
		s.writeError(w, http.StatusConflict, "User already exists")
		return
	case err != nil:
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, addUserResponse{
		Status:    "success",
		Message:   fmt.Sprintf("User %d added with promo code %s", user.TelegramID, user.PromoCode),
		PromoCode: user.PromoCode,
	})
}

type broadcastRequest struct {
	Message string `json:"message" validate:"required"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "message required")
		return
	}

	// A client disconnect must not cut the fan-out short.
	report, err := s.admin.BroadcastAll(context.WithoutCancel(r.Context()), req.Message, s.sender)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, "message required")
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type referralPaymentRequest struct {
	PaymentID          string          `json:"payment_id"           validate:"required,max=128"`
	OwnerTelegramID    int64           `json:"owner_telegram_id"    validate:"required"`
	ReferralTelegramID int64           `json:"referral_telegram_id"`
	Amount             decimal.Decimal `json:"amount"`
}

type referralPaymentResponse struct {
	PaymentID       string `json:"payment_id"`
	OwnerTelegramID int64  `json:"owner_telegram_id"`
	Amount          string `json:"amount"`
	Income          string `json:"income"`
}

// handleReferralPayment confirms a payment by a referred user. Each
// payment_id is credited at most once.
func (s *Server) handleReferralPayment(w http.ResponseWriter, r *http.Request) {
	var req referralPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "payment_id and owner_telegram_id are required")
		return
	}

	p, err := s.users.RecordReferralPayment(r.Context(), models.ReferralPayment{
		PaymentID:          req.PaymentID,
		OwnerTelegramID:    req.OwnerTelegramID,
		ReferralTelegramID: req.ReferralTelegramID,
		Amount:             req.Amount,
	})
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Usage)
		return
	case errors.Is(err, service.ErrConflict):
		s.writeError(w, http.StatusConflict, "payment already recorded")
		return
	case errors.Is(err, service.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "owner not found")
		return
	case err != nil:
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, referralPaymentResponse{
		PaymentID:       p.PaymentID,
		OwnerTelegramID: p.OwnerTelegramID,
		Amount:          p.Amount.StringFixed(2),
		Income:          p.Income.StringFixed(2),
	})
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.All(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	data, err := export.BuildXLSX(users)
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("http handler error")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
