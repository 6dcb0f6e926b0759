package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

const (
	defaultMCPTokenDays = 90
	maxMCPTokenDays     = 365
)

var validMCPScopes = []string{models.ScopeMCPRead, models.ScopeMCPWrite}

type apiTokenRepository interface {
	Create(ctx context.Context, token *models.APIToken) error
	ListByUser(ctx context.Context, userID string) ([]models.APIToken, error)
	GetByTokenID(ctx context.Context, tokenID string) (*models.APIToken, error)
	Revoke(ctx context.Context, id, userID string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

type staffRoleChecker interface {
	HasStaffRole(ctx context.Context, userID string) (bool, error)
}

// MCPTokenService issues and verifies long lived tokens for MCP clients.
type MCPTokenService struct {
	repo      apiTokenRepository
	staff     staffRoleChecker
	secret    []byte
	issuer    string
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMCPTokenService constructs the service. An empty secret makes issuance
// and verification fail with an internal error.
func NewMCPTokenService(repo apiTokenRepository, staff staffRoleChecker, secret, issuer string, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *MCPTokenService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPTokenService{
		repo:      repo,
		staff:     staff,
		secret:    []byte(secret),
		issuer:    issuer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the caller's tokens. Instructors and graders only.
func (s *MCPTokenService) List(ctx context.Context, userID string) ([]models.APIToken, error) {
	if err := s.requireStaff(ctx, userID); err != nil {
		return nil, err
	}
	tokens, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tokens")
	}
	if tokens == nil {
		tokens = []models.APIToken{}
	}
	return tokens, nil
}

// Create issues a token. Only instructors and graders may hold MCP tokens.
func (s *MCPTokenService) Create(ctx context.Context, userID string, req models.CreateMCPTokenRequest) (*models.CreateMCPTokenResponse, error) {
	if err := s.requireStaff(ctx, userID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name is required")
	}

	days := defaultMCPTokenDays
	if req.ExpiresInDays != nil {
		days = *req.ExpiresInDays
	}
	if days < 1 || days > maxMCPTokenDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_in_days must be between 1 and 365")
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{models.ScopeMCPRead}
	}
	for _, scope := range scopes {
		if !validScope(scope) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid scopes. Valid scopes: "+strings.Join(validMCPScopes, ", "))
		}
	}

	if len(s.secret) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "MCP token signing is not configured")
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(time.Duration(days) * 24 * time.Hour)
	tokenID := uuid.NewString()

	claims := models.MCPClaims{
		Scopes: scopes,
		Type:   models.MCPTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	record := &models.APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		TokenID:   tokenID,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
		CreatedAt: issuedAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store token")
	}

	s.metrics.RecordTokenIssued()
	s.logger.Info("mcp token issued", zap.String("user_id", userID), zap.String("token_id", record.ID), zap.Strings("scopes", scopes))
	return &models.CreateMCPTokenResponse{Token: models.MCPTokenPrefix + signed, Metadata: record}, nil
}

func (s *MCPTokenService) requireStaff(ctx context.Context, userID string) error {
	isStaff, err := s.staff.HasStaffRole(ctx, userID)
	if err != nil {
		return err
	}
	if !isStaff {
		return appErrors.Clone(appErrors.ErrForbidden, "MCP tokens require an instructor or grader role")
	}
	return nil
}

// Revoke marks the caller's token as revoked.
func (s *MCPTokenService) Revoke(ctx context.Context, userID, id string) error {
	if err := s.repo.Revoke(ctx, id, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke token")
	}
	return nil
}

// Verify authenticates a presented token and checks it grants scope.
func (s *MCPTokenService) Verify(ctx context.Context, raw, scope string) (*models.APIToken, error) {
	if len(s.secret) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "MCP token verification is not configured")
	}
	encoded, ok := strings.CutPrefix(raw, models.MCPTokenPrefix)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token format")
	}

	claims := &models.MCPClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if _, err := parser.ParseWithClaims(encoded, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired token")
	}
	if claims.Type != models.MCPTokenType || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token type")
	}

	record, err := s.repo.GetByTokenID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token not recognised")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}
	if record.RevokedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has been revoked")
	}
	if record.UserID != claims.Subject {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject mismatch")
	}
	if scope != "" && !record.HasScope(scope) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token lacks scope "+scope)
	}

	if err := s.repo.TouchLastUsed(ctx, record.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to record token use", zap.String("token_id", record.ID), zap.Error(err))
	}
	return record, nil
}

func validScope(scope string) bool {
	for _, v := range validMCPScopes {
		if v == scope {
			return true
		}
	}
	return false
}
