package rpc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// JWTConfig enables HMAC-signed bearer tokens. The secret is read from the
// named environment variable so it never lands in the config file.
type JWTConfig struct {
	Enable         bool
	Issuer         string
	Audience       []string
	HSSecretEnv    string
	MaxSkewSeconds int64
}

type jwtVerifier struct {
	secret   []byte
	issuer   string
	audience []string
	leeway   time.Duration
}

func newJWTVerifier(cfg JWTConfig) (*jwtVerifier, error) {
	if !cfg.Enable {
		return nil, nil
	}
	envName := strings.TrimSpace(cfg.HSSecretEnv)
	if envName == "" {
		return nil, fmt.Errorf("rpc: jwt secret env not configured")
	}
	secret := strings.TrimSpace(os.Getenv(envName))
	if secret == "" {
		return nil, fmt.Errorf("rpc: jwt secret env %s is empty", envName)
	}
	leeway := time.Duration(cfg.MaxSkewSeconds) * time.Second
	if leeway <= 0 {
		leeway = 2 * time.Minute
	}
	return &jwtVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: cfg.Audience,
		leeway:   leeway,
	}, nil
}

func (v *jwtVerifier) verify(tokenString string) error {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	if len(v.audience) == 0 {
		return nil
	}
	claimed, err := token.Claims.GetAudience()
	if err != nil {
		return err
	}
	for _, want := range v.audience {
		for _, got := range claimed {
			if got == want {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth accepts either the static bearer token or, when configured, a
// valid JWT.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" && s.jwt == nil {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	if s.authToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1 {
		return nil
	}
	if s.jwt != nil {
		if err := s.jwt.verify(token); err != nil {
			s.logger.Debug("jwt rejected", "reason", err.Error())
			return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
		}
		return nil
	}
	return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}
