// Package authn implements the per-request authentication decision for the
// inbound webhook. Three credential schemes coexist, evaluated in strict
// precedence order:
//
//  1. Bearer token — strongest; a valid token short-circuits everything else.
//  2. HMAC signature — X-Timestamp + X-Signature bind the exact body and a
//     timestamp to the shared secret, limiting replay and tampering.
//  3. Legacy plaintext secret in the payload — weakest, kept only for
//     backward compatibility and gated behind an explicit opt-in flag.
//
// The engine is state-free per request; all policy arrives as an immutable
// struct at construction.
package authn

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/smsbridge/internal/common"
	"github.com/dmitrijs2005/smsbridge/internal/cryptox"
	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/models"
)

// Policy is the immutable auth configuration evaluated on every request.
type Policy struct {
	// AuthRequired demands a bearer token unless AllowSecretFallback is set.
	AuthRequired bool
	// AllowSecretFallback permits HMAC/legacy auth when no bearer token
	// matched even though AuthRequired is set.
	AllowSecretFallback bool
	// AllowLegacySecret permits the plaintext payload secret scheme.
	AllowLegacySecret bool
	// HMACWindowSeconds bounds |now - X-Timestamp|; values below 1 act as 1.
	HMACWindowSeconds int
	// Secret is the shared secret for both HMAC and legacy auth.
	Secret string
}

// TokenVerifier is the credential-store surface the engine needs.
type TokenVerifier interface {
	FindUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	TouchLastUsed(ctx context.Context, tokenHash string) error
}

// Method identifies which scheme authenticated a request.
type Method string

const (
	MethodBearer       Method = "bearer"
	MethodHMAC         Method = "hmac"
	MethodLegacySecret Method = "legacy_secret"
)

// Request carries the credential material extracted from an inbound request.
type Request struct {
	BearerToken   string
	TimestampHdr  string
	SignatureHdr  string
	RawBody       []byte
	PayloadSecret string
}

// Result reports a successful authentication. User is set only for the
// bearer scheme.
type Result struct {
	Method Method
	User   *models.User
}

type Service struct {
	policy Policy
	tokens TokenVerifier
	logger logging.Logger
	now    func() time.Time
}

func NewService(policy Policy, tokens TokenVerifier, logger logging.Logger) *Service {
	return &Service{
		policy: policy,
		tokens: tokens,
		logger: logger.With("module", "authn"),
		now:    time.Now,
	}
}

// Authenticate evaluates the request against the configured policy.
// Rejections return common.ErrorUnauthorized; a missing shared secret on a
// path that needs one returns common.ErrorMisconfigured.
func (s *Service) Authenticate(ctx context.Context, req *Request) (*Result, error) {

	// 1. Bearer token wins outright when it matches a live token.
	if req.BearerToken != "" {
		hash := cryptox.HashToken(req.BearerToken)
		user, err := s.tokens.FindUserByTokenHash(ctx, hash)
		if err == nil {
			if touchErr := s.tokens.TouchLastUsed(ctx, hash); touchErr != nil {
				s.logger.Warn(ctx, "failed to update token last_used_at", "error", touchErr.Error())
			}
			return &Result{Method: MethodBearer, User: user}, nil
		}
	}

	// 2. No bearer match: bail out unless the secret fallback is open.
	if s.policy.AuthRequired && !s.policy.AllowSecretFallback {
		return nil, common.ErrorUnauthorized
	}

	// 3. Secret-based auth: HMAC headers first, then the legacy payload secret.
	hasTS := req.TimestampHdr != ""
	hasSig := req.SignatureHdr != ""

	switch {
	case hasTS && hasSig:
		return s.verifyHMAC(req)
	case hasTS || hasSig:
		// One header without the other is an incomplete credential.
		return nil, common.ErrorUnauthorized
	default:
		return s.verifyLegacySecret(req)
	}
}

func (s *Service) verifyHMAC(req *Request) (*Result, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(req.TimestampHdr), 10, 64)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	window := int64(s.policy.HMACWindowSeconds)
	if window < 1 {
		window = 1
	}
	skew := s.now().UTC().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > window {
		return nil, common.ErrorUnauthorized
	}

	if s.policy.Secret == "" {
		return nil, common.ErrorMisconfigured
	}

	mac := hmac.New(sha256.New, []byte(s.policy.Secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(req.RawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	supplied := strings.ToLower(strings.TrimSpace(req.SignatureHdr))
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return nil, common.ErrorUnauthorized
	}

	return &Result{Method: MethodHMAC}, nil
}

func (s *Service) verifyLegacySecret(req *Request) (*Result, error) {
	if !s.policy.AllowLegacySecret {
		return nil, common.ErrorUnauthorized
	}
	if s.policy.Secret == "" {
		return nil, common.ErrorMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(req.PayloadSecret), []byte(s.policy.Secret)) != 1 {
		return nil, common.ErrorUnauthorized
	}
	return &Result{Method: MethodLegacySecret}, nil
}
