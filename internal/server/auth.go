package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// player is the caller as asserted by a token from the pairing service.
type player struct {
	ID        string
	PairingID string
	PartnerID string
}

type playerClaims struct {
	Pair    string `json:"pair"`
	Partner string `json:"partner"`
	jwt.RegisteredClaims
}

var errBadClaims = errors.New("token missing player claims")

func parsePlayerToken(secret []byte, raw string) (player, error) {
	var c playerClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return player{}, err
	}
	if c.Subject == "" || c.Pair == "" || c.Partner == "" || c.Partner == c.Subject {
		return player{}, errBadClaims
	}
	return player{ID: c.Subject, PairingID: c.Pair, PartnerID: c.Partner}, nil
}

// IssueToken signs a player token. The pairing service owns issuance in
// production; this is for tooling and tests.
func IssueToken(secret []byte, userID, pairingID, partnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, playerClaims{
		Pair:    pairingID,
		Partner: partnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	s, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return s, nil
}
