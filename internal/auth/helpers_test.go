package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtTimeAt(now time.Time) jwt.ParserOption {
	return jwt.WithTimeFunc(func() time.Time { return now })
}
