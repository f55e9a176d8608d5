package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadTicket = errors.New("bad ticket")

// Ticket binds a player to a seat in a match
type Ticket struct {
	PlayerID string
	MatchID  string
	Seat     int
}

// Tickets signs and checks seat tickets
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTickets(secret string, ttl time.Duration) *Tickets {
	return &Tickets{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs t
func (ts *Tickets) Issue(t Ticket) (string, error) {
	if len(ts.secret) == 0 {
		return "", errors.New("no ticket secret configured")
	}

	claims := jwt.MapClaims{
		"sub":  t.PlayerID,
		"mid":  t.MatchID,
		"seat": t.Seat,
		"iat":  ts.now().Unix(),
		"exp":  ts.now().Add(ts.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secret)
}

// Parse checks a signed ticket and returns what it binds
func (ts *Tickets) Parse(signed string) (Ticket, error) {
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secret, nil
	}, jwt.WithTimeFunc(ts.now), jwt.WithExpirationRequired())
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrBadTicket, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Ticket{}, ErrBadTicket
	}

	sub, _ := claims["sub"].(string)
	mid, _ := claims["mid"].(string)
	seat, ok := claims["seat"].(float64)
	if sub == "" || mid == "" || !ok || seat < 0 {
		return Ticket{}, fmt.Errorf("%w: missing claims", ErrBadTicket)
	}

	return Ticket{PlayerID: sub, MatchID: mid, Seat: int(seat)}, nil
}
