package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signin_service/internal/lib/jwt"
	sl "signin_service/internal/lib/logger"
	"signin_service/internal/lib/verification"
	"signin_service/internal/metrics"
	"signin_service/internal/models"
	"signin_service/internal/storage"
)

var (
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	ErrVerificationTokenExpired = errors.New("verification token expired")
)

type Auth struct {
	log             *slog.Logger
	users           UserDirectory
	verTokens       VerificationTokenStore
	refTokens       RefreshTokenStore
	emails          verification.Publisher
	mtr             *metrics.Metrics
	appURL          string
	jwtSecret       string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	verificationTTL time.Duration
}

type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, email string, role models.Role) (models.User, error)
	VerifyEmail(ctx context.Context, id int64) (models.User, error)
}

type VerificationTokenStore interface {
	CreateVerificationToken(ctx context.Context, identifier string, ttl time.Duration) (models.VerificationToken, error)
	VerificationTokenByValue(ctx context.Context, token string) (models.VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, identifier, token string) (int64, error)
	DeleteVerificationTokens(ctx context.Context, identifier string) (int64, error)
}

type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, userID int64, ttl time.Duration) (models.RefreshToken, error)
}

func New(
	log *slog.Logger,
	users UserDirectory,
	verTokens VerificationTokenStore,
	refTokens RefreshTokenStore,
	emails verification.Publisher,
	mtr *metrics.Metrics,
	appURL string,
	jwtSecret string,
	accessTTL, refreshTTL, verificationTTL time.Duration,
) *Auth {
	return &Auth{
		log:             log,
		users:           users,
		verTokens:       verTokens,
		refTokens:       refTokens,
		emails:          emails,
		mtr:             mtr,
		appURL:          appURL,
		jwtSecret:       jwtSecret,
		accessTTL:       accessTTL,
		refreshTTL:      refreshTTL,
		verificationTTL: verificationTTL,
	}
}

// * RequestSignIn создает одноразовый токен и отправляет magic link на почту.
// The flow is identical for known and unknown emails: no user row is created
// here and no outcome difference is observable by the caller. Stale pending
// tokens for the identifier are invalidated first, so at most one link is
// live at a time.
func (a *Auth) RequestSignIn(ctx context.Context, email string) error {
	const op = "auth.RequestSignIn"

	log := a.log.With(slog.String("op", op))

	if _, err := a.verTokens.DeleteVerificationTokens(ctx, email); err != nil {
		log.Error("failed to invalidate pending tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	vt, err := a.verTokens.CreateVerificationToken(ctx, email, a.verificationTTL)
	if err != nil {
		log.Error("failed to create verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := verification.SendSignInLink(ctx, a.emails, a.appURL, email, vt.Token); err != nil {
		log.Error("failed to queue sign-in email", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.mtr.SignInRequests.Inc()

	log.Info("sign-in email queued")

	return nil
}

// * RedeemSignIn обменивает одноразовый токен на пару access/refresh токенов.
// The token is consumed on every terminal outcome: success deletes it, expiry
// deletes it, and a second attempt with the same value fails exactly like a
// token that never existed.
func (a *Auth) RedeemSignIn(ctx context.Context, token string) (accessToken, refreshToken string, err error) {
	const op = "auth.RedeemSignIn"

	log := a.log.With(slog.String("op", op))

	vt, err := a.verTokens.VerificationTokenByValue(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrVerificationTokenNotFound) {
			log.Warn("verification token not found")
			a.mtr.Redemptions.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return "", "", ErrInvalidVerificationToken
		}

		log.Error("failed to look up verification token", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if vt.IsExpired() {
		if _, err := a.verTokens.DeleteVerificationToken(ctx, vt.Identifier, vt.Token); err != nil {
			log.Error("failed to delete expired verification token", sl.Err(err))
		}

		log.Warn("verification token expired")
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeExpired).Inc()
		return "", "", ErrVerificationTokenExpired
	}

	user, err := a.resolveUser(ctx, vt.Identifier)
	if err != nil {
		log.Error("failed to resolve user", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	user, err = a.users.VerifyEmail(ctx, user.ID)
	if err != nil {
		log.Error("failed to mark email verified", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err = jwt.NewAccessToken(a.jwtSecret, a.accessTTL, user.ID, user.Email)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	rt, err := a.refTokens.CreateRefreshToken(ctx, user.ID, a.refreshTTL)
	if err != nil {
		log.Error("failed to create refresh token", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	affected, err := a.verTokens.DeleteVerificationToken(ctx, vt.Identifier, vt.Token)
	if err != nil {
		log.Error("failed to delete verification token", sl.Err(err))
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		// Lost a concurrent redemption: someone consumed the row between our
		// read and this delete. The single atomic delete decides the winner.
		log.Warn("verification token already consumed")
		a.mtr.Redemptions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return "", "", ErrInvalidVerificationToken
	}

	a.mtr.Redemptions.WithLabelValues(metrics.OutcomeOK).Inc()

	log.Info("sign-in redeemed", slog.Int64("uid", user.ID))

	return accessToken, rt.Token, nil
}

// resolveUser materializes the user lazily, on first successful redemption.
// A concurrent creation race surfaces as ErrUserExists and falls back to the
// lookup, the row is there by then.
func (a *Auth) resolveUser(ctx context.Context, email string) (models.User, error) {
	user, err := a.users.UserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, err
	}

	user, err = a.users.CreateUser(ctx, email, models.RoleUser)
	if errors.Is(err, storage.ErrUserExists) {
		return a.users.UserByEmail(ctx, email)
	}

	return user, err
}
