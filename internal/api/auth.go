package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"

	"github.com/edulink/classchat/internal/types"
)

// TokenVerifier turns an opaque credential into a verified identity.
// Credential issuance lives in the sibling account system; this process
// only verifies.
type TokenVerifier interface {
	Verify(token string) (types.Identity, error)
}

const (
	userIdClaim      = "user-id"
	tenantIdClaim    = "tenant-id"
	roleClaim        = "role"
	usernameClaim    = "username"
	displayNameClaim = "display-name"
	classCodeClaim   = "class-code"
	groupsClaim      = "groups"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(types.Identity)
	return identity, ok
}

// JwtVerifier verifies HS256 tokens minted by the account system and maps
// their claims onto an Identity.
type JwtVerifier struct {
	signingKey []byte
}

func NewJwtVerifier(signingKey []byte) *JwtVerifier {
	return &JwtVerifier{signingKey: signingKey}
}

func (v *JwtVerifier) Verify(tokenString string) (types.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return types.Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("invalid token claims")
	}

	identity := types.Identity{
		UserId:      stringClaim(claims, userIdClaim),
		TenantId:    stringClaim(claims, tenantIdClaim),
		Role:        types.Role(stringClaim(claims, roleClaim)),
		Username:    stringClaim(claims, usernameClaim),
		DisplayName: stringClaim(claims, displayNameClaim),
		ClassCode:   stringClaim(claims, classCodeClaim),
		Groups:      listClaim(claims, groupsClaim),
	}

	if identity.UserId == "" || identity.TenantId == "" {
		return types.Identity{}, fmt.Errorf("token missing user or tenant claim")
	}

	switch identity.Role {
	case types.RoleStudent, types.RoleTeacher, types.RoleSchoolAdmin:
	default:
		return types.Identity{}, fmt.Errorf("unknown role claim %q", identity.Role)
	}

	return identity, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	value, _ := claims[name].(string)
	return value
}

// listClaim accepts both a JSON array and a legacy comma-separated string;
// the account system has issued both shapes over time.
func listClaim(claims jwt.MapClaims, name string) []string {
	switch value := claims[name].(type) {
	case []any:
		var list []string
		for _, item := range value {
			if s, ok := item.(string); ok && s != "" {
				list = append(list, s)
			}
		}
		return list
	case string:
		return splitCSV(value)
	default:
		return nil
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
