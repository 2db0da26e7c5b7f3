package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	"github.com/SangusIT/loanshare/internal/loans/repository/loanrepo"
	"github.com/SangusIT/loanshare/internal/loans/repository/userrepo"
	"github.com/SangusIT/loanshare/internal/loans/services/authservice"
	"github.com/SangusIT/loanshare/internal/loans/services/loanservice"
	"github.com/SangusIT/loanshare/internal/pkg/config"
	"github.com/SangusIT/loanshare/internal/pkg/jwtauth"
	"github.com/SangusIT/loanshare/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

var (
	errTokenRequired = errors.New("bearer token required")
	errBadToken      = errors.New("invalid bearer token")
)

type Server struct {
	serv        *http.Server
	loanService LoanService
	authService AuthService
}

type LoanService interface {
	CreateLoan(context.Context, models.Loan) (int64, error)
	GetLoan(context.Context, loanservice.GetLoanRequest) (models.Loan, error)
	ListLoans(context.Context, loanservice.ListLoansRequest) ([]models.Loan, error)
	UpdateLoan(context.Context, loanservice.UpdateLoanRequest) error
	DeleteLoan(context.Context, loanservice.DeleteLoanRequest) error
	ShareLoan(context.Context, loanservice.ShareLoanRequest) error
	Schedule(context.Context, loanservice.GetLoanRequest) ([]models.ScheduleEntry, error)
	Summary(context.Context, loanservice.SummaryRequest) (models.LoanSummary, error)
	Shutdown(context.Context) error
}

type AuthService interface {
	CreateUser(context.Context, authservice.CreateUserRequest) (string, error)
	Identity(string) (jwtauth.Claims, error)
	Login(context.Context, string, string) (string, error)
}

func New(cfg config.Server, ls LoanService, authService AuthService, lg logger.Logger) *Server {
	s := &Server{ //nolint:exhaustruct
		loanService: ls,
		authService: authService,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{ //nolint:exhaustruct
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(loggingMiddleware(lg))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth", s.PostAuth)
		r.Post("/user", s.PostUser)
		r.Get("/docs", s.GetDocs)

		r.Route("/loan", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.PostLoan)
			r.Get("/", s.GetLoans)

			r.Route("/{loanID}", func(r chi.Router) {
				r.Get("/", s.GetLoan)
				r.Patch("/", s.PatchLoan)
				r.Delete("/", s.DeleteLoan)
				r.Post("/share", s.PostShareLoan)
				r.Get("/schedule", s.GetSchedule)
				r.Get("/summary", s.GetSummary)
			})
		})
	})

	s.serv = &http.Server{ //nolint:exhaustruct
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.serv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error)

	go func() {
		if err := s.serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			close(errCh)
		}
	}()

	select {
	case <-ctx.Done():
		ctxS, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
		defer cancel()

		if err := s.Shutdown(ctxS); err != nil { //nolint:contextcheck
			return fmt.Errorf("context error: %w server error %w", ctxS.Err(), err)
		}

		if !errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("context cancelled error: %w", ctx.Err())
		}

		return nil
	case err := <-errCh:
		return fmt.Errorf("listen and serve error: %w", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctxS, cancel := context.WithTimeout(ctx, s.serv.IdleTimeout)
	defer cancel()

	if err := s.serv.Shutdown(ctxS); err != nil {
		return fmt.Errorf("shutdown server error: %w", err)
	}

	return nil
}

// Аутентификация пользователя. Принимает и форму OAuth2 password flow,
// и JSON.
// (POST /auth).
func (s *Server) PostAuth(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	var username, password string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			handleError(w, fmt.Errorf("parse form error: %w", err), http.StatusBadRequest)

			return
		}

		username = r.PostFormValue("username")
		password = r.PostFormValue("password")
	} else {
		var b struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}

		dec := json.NewDecoder(r.Body)

		if err := dec.Decode(&b); err != nil {
			handleError(w, fmt.Errorf("decode error: %w", err), http.StatusBadRequest)

			return
		}

		username = b.Username
		password = b.Password
	}

	if username == "" || password == "" {
		handleError(w, fmt.Errorf("not enough parameters to auth user"), http.StatusBadRequest) //nolint:perfsprint

		return
	}

	token, err := s.authService.Login(r.Context(), username, password)
	if err != nil {
		handleError(w, fmt.Errorf("login error: %w", err), http.StatusUnauthorized)

		return
	}

	resp := AuthUserResponse{Token: token, TokenType: "bearer"}

	enc := json.NewEncoder(w)

	if err := enc.Encode(resp); err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}
}

// Создание пользователя
// (POST /user).
func (s *Server) PostUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	var req authservice.CreateUserRequest

	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(&req); err != nil {
		handleError(w, fmt.Errorf("decode error: %w", err), http.StatusBadRequest)

		return
	}

	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	token, err := s.authService.CreateUser(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrEmptyFields):
			handleError(w, err, http.StatusBadRequest)
		case errors.Is(err, authservice.ErrNotAllowed):
			handleError(w, err, http.StatusForbidden)
		case errors.Is(err, userrepo.ErrAlreadyExists):
			handleError(w, err, http.StatusConflict)
		default:
			handleError(w, fmt.Errorf("create user error: %w", err), http.StatusInternalServerError)
		}

		return
	}

	resp := CreateUserResponse{Token: token, TokenType: "bearer"}

	bts, err := json.Marshal(resp)
	if err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusCreated)
	w.Write(bts) //nolint:errcheck
}

// Создание нового займа
// (POST /loan).
func (s *Server) PostLoan(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	var loan models.Loan

	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(&loan); err != nil {
		handleError(w, fmt.Errorf("decode error: %w", err), http.StatusBadRequest)

		return
	}

	loan.CreatedBy = claims.UserID

	id, err := s.loanService.CreateLoan(r.Context(), loan)
	if err != nil {
		if errors.Is(err, loanservice.ErrInvalidLoan) {
			handleError(w, err, http.StatusBadRequest)

			return
		}

		handleError(w, fmt.Errorf("create loan error: %w", err), http.StatusInternalServerError)

		return
	}

	resp := CreateLoanResponse{LoanID: id}

	bts, err := json.Marshal(resp)
	if err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusCreated)
	w.Write(bts) //nolint:errcheck
}

// Получение всех займов, видимых пользователю
// (GET /loan).
func (s *Server) GetLoans(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	var req loanservice.ListLoansRequest
	req.UserID = claims.UserID
	req.IsAdmin = claims.Role == models.RoleAdmin

	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			handleError(w, fmt.Errorf("parse offset error: %w", err), http.StatusBadRequest)

			return
		}

		req.Offset = offset
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			handleError(w, fmt.Errorf("parse limit error: %w", err), http.StatusBadRequest)

			return
		}

		req.Limit = limit
	}

	loans, err := s.loanService.ListLoans(r.Context(), req)
	if err != nil {
		handleError(w, fmt.Errorf("list loans error: %w", err), http.StatusInternalServerError)

		return
	}

	enc := json.NewEncoder(w)

	if err := enc.Encode(loans); err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}
}

// Получение займа по идентификатору
// (GET /loan/{id}).
func (s *Server) GetLoan(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	req, ok := s.loanRequest(w, r)
	if !ok {
		return
	}

	loan, err := s.loanService.GetLoan(r.Context(), req)
	if err != nil {
		handleLoanError(w, err)

		return
	}

	enc := json.NewEncoder(w)

	if err := enc.Encode(loan); err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}
}

// Обновление условий займа
// (PATCH /loan/{id}).
func (s *Server) PatchLoan(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	loanID, err := loanIDFromURL(r)
	if err != nil {
		handleError(w, err, http.StatusBadRequest)

		return
	}

	var loan models.Loan

	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(&loan); err != nil {
		handleError(w, fmt.Errorf("decode error: %w", err), http.StatusBadRequest)

		return
	}

	loan.ID = loanID

	req := loanservice.UpdateLoanRequest{
		Loan:    loan,
		UserID:  claims.UserID,
		IsAdmin: claims.Role == models.RoleAdmin,
	}

	if err := s.loanService.UpdateLoan(r.Context(), req); err != nil {
		if errors.Is(err, loanservice.ErrInvalidLoan) {
			handleError(w, err, http.StatusBadRequest)

			return
		}

		handleLoanError(w, err)

		return
	}

	w.WriteHeader(http.StatusOK)
}

// Удаление займа
// (DELETE /loan/{id}).
func (s *Server) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	loanID, err := loanIDFromURL(r)
	if err != nil {
		handleError(w, err, http.StatusBadRequest)

		return
	}

	req := loanservice.DeleteLoanRequest{
		LoanID:  loanID,
		UserID:  claims.UserID,
		IsAdmin: claims.Role == models.RoleAdmin,
	}

	if err := s.loanService.DeleteLoan(r.Context(), req); err != nil {
		handleLoanError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Предоставление доступа к займу другому пользователю
// (POST /loan/{id}/share).
func (s *Server) PostShareLoan(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	loanID, err := loanIDFromURL(r)
	if err != nil {
		handleError(w, err, http.StatusBadRequest)

		return
	}

	var b struct {
		Username string `json:"username"`
	}

	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(&b); err != nil {
		handleError(w, fmt.Errorf("decode error: %w", err), http.StatusBadRequest)

		return
	}

	if b.Username == "" {
		handleError(w, fmt.Errorf("username required to share loan"), http.StatusBadRequest) //nolint:perfsprint

		return
	}

	req := loanservice.ShareLoanRequest{
		LoanID:   loanID,
		UserID:   claims.UserID,
		IsAdmin:  claims.Role == models.RoleAdmin,
		Username: b.Username,
	}

	if err := s.loanService.ShareLoan(r.Context(), req); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrNotFound):
			handleError(w, err, http.StatusNotFound)
		case errors.Is(err, loanrepo.ErrAlreadyShared):
			handleError(w, err, http.StatusConflict)
		default:
			handleLoanError(w, err)
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// График платежей по займу
// (GET /loan/{id}/schedule).
func (s *Server) GetSchedule(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	req, ok := s.loanRequest(w, r)
	if !ok {
		return
	}

	schedule, err := s.loanService.Schedule(r.Context(), req)
	if err != nil {
		handleLoanError(w, err)

		return
	}

	enc := json.NewEncoder(w)

	if err := enc.Encode(schedule); err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}
}

// Состояние займа на заданный месяц
// (GET /loan/{id}/summary?month=N).
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return
	}

	loanID, err := loanIDFromURL(r)
	if err != nil {
		handleError(w, err, http.StatusBadRequest)

		return
	}

	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		handleError(w, fmt.Errorf("parse month error: %w", err), http.StatusBadRequest)

		return
	}

	req := loanservice.SummaryRequest{
		LoanID:  loanID,
		UserID:  claims.UserID,
		IsAdmin: claims.Role == models.RoleAdmin,
		Month:   month,
	}

	summary, err := s.loanService.Summary(r.Context(), req)
	if err != nil {
		if errors.Is(err, loanservice.ErrBadMonth) {
			handleError(w, err, http.StatusBadRequest)

			return
		}

		handleLoanError(w, err)

		return
	}

	enc := json.NewEncoder(w)

	if err := enc.Encode(summary); err != nil {
		handleError(w, fmt.Errorf("encode error: %w", err), http.StatusInternalServerError)

		return
	}
}

func (s *Server) GetDocs(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "./docs/index.html")
}

func (s *Server) loanRequest(w http.ResponseWriter, r *http.Request) (loanservice.GetLoanRequest, bool) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		handleError(w, errTokenRequired, http.StatusUnauthorized)

		return loanservice.GetLoanRequest{}, false
	}

	loanID, err := loanIDFromURL(r)
	if err != nil {
		handleError(w, err, http.StatusBadRequest)

		return loanservice.GetLoanRequest{}, false
	}

	return loanservice.GetLoanRequest{
		LoanID:          loanID,
		UserID:          claims.UserID,
		IsAdmin:         claims.Role == models.RoleAdmin,
		UseLastRevision: r.URL.Query().Get("use_last_revision") == "true",
	}, true
}

func loanIDFromURL(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse loan id error: %w", err)
	}

	return id, nil
}

func handleLoanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loanservice.ErrNotFound):
		handleError(w, err, http.StatusNotFound)
	case errors.Is(err, loanservice.ErrForbidden):
		handleError(w, err, http.StatusForbidden)
	default:
		handleError(w, err, http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, err error, code int) {
	w.WriteHeader(code)

	e := Error{err.Error()}

	w.Write(e.ToJSON()) //nolint:errcheck
}
