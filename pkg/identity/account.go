package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Account is the signed-in user as described by an id token.
type Account struct {
	ObjectID string
	TenantID string
	Username string
	Name     string
}

// HomeAccountID is "<oid>.<tid>".
func (a *Account) HomeAccountID() string {
	return a.ObjectID + "." + a.TenantID
}

// ParseIDToken reads the claims of an id token. The signature is not
// checked; the token came straight from the token endpoint over TLS.
func ParseIDToken(raw string) (*Account, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parsing id token: %w", err)
	}
	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	acct := &Account{
		ObjectID: str("oid"),
		TenantID: str("tid"),
		Username: str("preferred_username"),
		Name:     str("name"),
	}
	if acct.Username == "" {
		acct.Username = str("email")
	}
	return acct, nil
}
