package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifier(t *testing.T) {
	Convey("Given a verifier bound to an issuer", t, func() {
		v := NewVerifier("s3cret", "https://id.example.com", "")
		now := time.Now()
		valid := jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}

		Convey("a well-formed token yields the subject", func() {
			claims, err := v.Verify(sign(t, jwt.SigningMethodHS256, "s3cret", &Claims{Email: "a@b.c", RegisteredClaims: valid}))
			So(err, ShouldBeNil)
			So(claims.UserID(), ShouldEqual, "user-42")
			So(claims.Email, ShouldEqual, "a@b.c")
		})

		Convey("expired tokens are reported as expired", func() {
			expired := valid
			expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
			_, err := v.Verify(sign(t, jwt.SigningMethodHS256, "s3cret", &Claims{RegisteredClaims: expired}))
			So(err, ShouldEqual, ErrExpiredToken)
		})

		Convey("wrong secret, issuer or missing subject are invalid", func() {
			_, err := v.Verify(sign(t, jwt.SigningMethodHS256, "other", &Claims{RegisteredClaims: valid}))
			So(err, ShouldEqual, ErrInvalidToken)

			wrongIss := valid
			wrongIss.Issuer = "https://evil.example.com"
			_, err = v.Verify(sign(t, jwt.SigningMethodHS256, "s3cret", &Claims{RegisteredClaims: wrongIss}))
			So(err, ShouldEqual, ErrInvalidToken)

			noSub := valid
			noSub.Subject = ""
			_, err = v.Verify(sign(t, jwt.SigningMethodHS256, "s3cret", &Claims{RegisteredClaims: noSub}))
			So(err, ShouldEqual, ErrInvalidToken)

			_, err = v.Verify("not-a-token")
			So(err, ShouldEqual, ErrInvalidToken)
		})
	})
}
