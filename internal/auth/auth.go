package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"dmchat/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry    = time.Hour
	DefaultOTPExpiry      = time.Hour
	DefaultResendInterval = 30 * time.Second
	DefaultAvatarURL      = "https://i.ibb.co/3s3p72d/avatar1.png"

	bcryptCost = 10
	issuer     = "dmchat"
)

// UserCredentials is an account together with its secrets.
type UserCredentials struct {
	models.User
	PasswordHash string
	OTP          string
	OTPExpires   int64 // Unix timestamp (milliseconds)
}

type credentialStore interface {
	CreateUser(credentials UserCredentials) error
	UpdateUser(credentials UserCredentials) error
	GetUserByEmail(email string) (UserCredentials, error)
}

type otpMailer interface {
	SendOTP(ctx context.Context, email, otp string) error
}

// Claims is the JWT payload. The user id travels in the "id" claim.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret         string        `json:"secret"`
	secretBytes    []byte        `json:"-"`
	TokenExpiry    time.Duration `json:"tokenExpiry"`
	OTPExpiry      time.Duration `json:"otpExpiry"`
	ResendInterval time.Duration `json:"resendInterval"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	if c.OTPExpiry == 0 {
		c.OTPExpiry = DefaultOTPExpiry
	}
	if c.ResendInterval == 0 {
		c.ResendInterval = DefaultResendInterval
	}

	return nil
}

type AuthService struct {
	Config
	store  credentialStore
	mailer otpMailer
	// Email -> time of the last OTP mail, expires after ResendInterval.
	recentOTPs  geche.Geche[string, int64]
	now         func() time.Time
	generateOTP func() (string, error)
}

func NewAuthService(ctx context.Context, config Config, store credentialStore, mailer otpMailer) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:      config,
		store:       store,
		mailer:      mailer,
		recentOTPs:  geche.NewMapTTLCache[string, int64](ctx, config.ResendInterval, time.Minute),
		now:         time.Now,
		generateOTP: generateOTP,
	}, nil
}

// Register creates an unverified account and mails it a one-time password.
// The account is kept even if the mail cannot be sent; the user can ask for
// another code.
func (as *AuthService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	otp, err := as.generateOTP()
	if err != nil {
		return models.User{}, err
	}

	now := as.now()
	credentials := UserCredentials{
		User: models.User{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     strings.ToLower(email),
			AvatarURL: DefaultAvatarURL,
			CreatedAt: now.UnixMilli(),
		},
		PasswordHash: string(hash),
		OTP:          otp,
		OTPExpires:   now.Add(as.OTPExpiry).UnixMilli(),
	}

	if err := as.store.CreateUser(credentials); err != nil {
		return models.User{}, err
	}

	if err := as.sendOTP(ctx, credentials.Email, otp); err != nil {
		return models.User{}, err
	}

	return credentials.User, nil
}

func (as *AuthService) VerifyOTP(email, otp string) error {
	user, err := as.store.GetUserByEmail(email)
	if err != nil {
		return err
	}

	if user.Verified {
		return models.ErrAlreadyVerified
	}

	if user.OTP == "" || user.OTP != otp || user.OTPExpires < as.now().UnixMilli() {
		return models.ErrInvalidOTP
	}

	user.Verified = true
	user.OTP = ""
	user.OTPExpires = 0
	return as.store.UpdateUser(user)
}

func (as *AuthService) ResendOTP(ctx context.Context, email string) error {
	user, err := as.store.GetUserByEmail(email)
	if err != nil {
		return err
	}

	if user.Verified {
		return models.ErrAlreadyVerified
	}

	if _, err := as.recentOTPs.Get(user.Email); err == nil {
		return models.ErrTooManyRequests
	}

	otp, err := as.generateOTP()
	if err != nil {
		return err
	}

	user.OTP = otp
	user.OTPExpires = as.now().Add(as.OTPExpiry).UnixMilli()
	if err := as.store.UpdateUser(user); err != nil {
		return err
	}

	return as.sendOTP(ctx, user.Email, otp)
}

func (as *AuthService) Login(email, password string) (models.LoginResponse, error) {
	user, err := as.store.GetUserByEmail(email)
	if err != nil {
		return models.LoginResponse{}, err
	}

	if !user.Verified {
		return models.LoginResponse{}, models.ErrNotVerified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.LoginResponse{}, models.ErrInvalidCredentials
	}

	token, err := as.issueToken(user.ID)
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return models.LoginResponse{}, err
	}

	var resp models.LoginResponse
	resp.Token = token
	resp.User.ID = user.ID
	resp.User.Username = user.Username
	resp.User.Email = user.Email
	return resp, nil
}

// UserID verifies a token and returns the user it was issued for.
func (as *AuthService) UserID(token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) {
			return as.secretBytes, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: token has no user id", models.ErrUnauthorized)
	}
	return claims.UserID, nil
}

func (as *AuthService) issueToken(userID string) (string, error) {
	now := as.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.TokenExpiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secretBytes)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (as *AuthService) sendOTP(ctx context.Context, email, otp string) error {
	if err := as.mailer.SendOTP(ctx, email, otp); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	as.recentOTPs.Set(email, as.now().Unix())
	return nil
}

// generateOTP returns a 6 digit numeric code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
