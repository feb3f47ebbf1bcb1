package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"dmchat/internal/content"
	"dmchat/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

type authenticator interface {
	Register(ctx context.Context, username, email, password string) (models.User, error)
	VerifyOTP(email, otp string) error
	ResendOTP(ctx context.Context, email string) error
	Login(email, password string) (models.LoginResponse, error)
	UserID(token string) (string, error)
}

type userDirectory interface {
	ListUsers() ([]models.User, error)
}

type messageService interface {
	Send(ctx context.Context, senderID, receiverID, text string) (models.MessagePayload, error)
	History(ctx context.Context, userID, otherID string) ([]models.Message, error)
}

type API struct {
	auth     authenticator
	users    userDirectory
	messages messageService
}

func New(auth authenticator, users userDirectory, messages messageService) *API {
	return &API{auth: auth, users: users, messages: messages}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := content.ValidateUsername(req.Username); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: err.Error()})
		return
	}

	if _, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		writeError(w, err, "Server error during registration.")
		return
	}

	writeJSON(w, http.StatusCreated, models.APIResponse{
		Message: "User registered successfully. Please check your email for OTP.",
	})
}

func (a *API) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := a.auth.VerifyOTP(req.Email, req.OTP); err != nil {
		writeError(w, err, "Server error during OTP verification.")
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{Message: "OTP verified successfully."})
}

func (a *API) ResendOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := a.auth.ResendOTP(r.Context(), req.Email); err != nil {
		writeError(w, err, "Failed to resend OTP.")
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{Message: "New OTP sent to your email."})
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(req.Email, req.Password)
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.APIResponse{Message: "Invalid credentials."})
		return
	}
	if err != nil {
		writeError(w, err, "Server error during login.")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UsersHandler lists every account except the caller's.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	users, err := a.users.ListUsers()
	if err != nil {
		writeError(w, err, "Server error.")
		return
	}

	writeJSON(w, http.StatusOK, lo.Filter(users, func(u models.User, _ int) bool {
		return u.ID != userID
	}))
}

func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	otherID := chi.URLParam(r, "otherUserId")

	thread, err := a.messages.History(r.Context(), userID, otherID)
	if err != nil {
		writeError(w, err, "Server error.")
		return
	}

	writeJSON(w, http.StatusOK, thread)
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := UserIDFromContext(r.Context())
	receiverID := chi.URLParam(r, "otherUserId")

	payload, err := a.messages.Send(r.Context(), userID, receiverID, req.Text)
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.APIResponse{Message: "Receiver not found."})
		return
	}
	if err != nil {
		writeError(w, err, "Server error.")
		return
	}

	writeJSON(w, http.StatusCreated, payload)
}

type userIDKey struct{}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's user id in the request context.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, models.APIResponse{Message: "Not authorized, no token"})
			return
		}

		userID, err := a.auth.UserID(token)
		if err != nil {
			slog.Debug("rejected bearer token", "remote_addr", r.RemoteAddr, "error", err)
			writeJSON(w, http.StatusUnauthorized, models.APIResponse{Message: "Not authorized, token failed"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// CORS allows browser calls from the configured frontend origin. An empty
// origin allows any.
func CORS(origin string) func(http.Handler) http.Handler {
	origins := []string{"*"}
	if origin != "" {
		origins = []string{origin}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: "Invalid request body"})
		return false
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{
			Message: "All fields are required.",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP statuses. Anything unknown is a
// server error reported with fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUserExists):
		status, message = http.StatusConflict, "User with this email or username already exists."
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "User not found."
	case errors.Is(err, models.ErrAlreadyVerified):
		status, message = http.StatusBadRequest, "User is already verified."
	case errors.Is(err, models.ErrInvalidOTP):
		status, message = http.StatusBadRequest, "Invalid or expired OTP."
	case errors.Is(err, models.ErrNotVerified):
		status, message = http.StatusUnauthorized, "Please verify your email with OTP first."
	case errors.Is(err, models.ErrInvalidCredentials):
		status, message = http.StatusBadRequest, "Invalid credentials."
	case errors.Is(err, models.ErrTooManyRequests):
		status, message = http.StatusTooManyRequests, "Please wait before requesting another OTP."
	case errors.Is(err, models.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "Not authorized, token failed"
	default:
		slog.Error("request failed", "error", err)
	}

	writeJSON(w, status, models.APIResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
