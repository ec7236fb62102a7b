package httpapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/casastay/homestay/pkg/booking"
)

// admissionClaims carries an admitted stay through to the booking commit. The
// token pins unit, dates, guests, and the quoted total so the commit re-check
// can detect both tampering and an expired quote.
type admissionClaims struct {
	HomestayID int64  `json:"homestay_id"`
	UnitID     int64  `json:"unit_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Guests     int    `json:"guests"`
	TotalVND   int64  `json:"total_vnd"`
	jwt.RegisteredClaims
}

func issueAdmissionToken(cfg Config, admission booking.Admission, now time.Time) (string, error) {
	claims := admissionClaims{
		HomestayID: int64(admission.HomestayID),
		UnitID:     int64(admission.UnitID),
		CheckIn:    admission.CheckIn.String(),
		CheckOut:   admission.CheckOut.String(),
		Guests:     admission.Guests,
		TotalVND:   admission.Total.Int64(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.TokenSigningKey))
}

func parseAdmissionToken(cfg Config, raw string) (admissionClaims, error) {
	var claims admissionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.TokenSigningKey), nil
	}, jwt.WithIssuer(cfg.TokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return admissionClaims{}, err
	}
	if !token.Valid {
		return admissionClaims{}, fmt.Errorf("invalid admission token")
	}
	return claims, nil
}
