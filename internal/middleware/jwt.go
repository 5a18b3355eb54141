package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hummingbirdtestai/mocktest-engine/internal/response"
)

// ContextKeyStudentID is the Gin context key for the authenticated student.
const ContextKeyStudentID = "student_id"

// StudentClaims carries the stable student identifier issued by the
// identity provider. The engine consumes it as an opaque token on every
// intent; it never validates anything beyond the signature and never
// refreshes it.
type StudentClaims struct {
	StudentID string `json:"student_id"`
	jwt.RegisteredClaims
}

// RequireStudentJWT validates a student JWT from the Authorization header
// and stores the student ID on the context.
func RequireStudentJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		studentID, err := parseStudentID(tokenStr, secret)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyStudentID, studentID)
		c.Next()
	}
}

// RequireStudentWSAuth validates a student JWT from the query param
// ?token=... Used for WebSocket upgrade requests, where browsers cannot
// set an Authorization header.
func RequireStudentWSAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		studentID, err := parseStudentID(tokenStr, secret)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyStudentID, studentID)
		c.Next()
	}
}

// GetStudentID returns the authenticated student ID, or "" if the auth
// middleware did not run.
func GetStudentID(c *gin.Context) string {
	v, ok := c.Get(ContextKeyStudentID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

func parseStudentID(tokenStr, secret string) (string, error) {
	claims := &StudentClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.StudentID == "" {
		return "", fmt.Errorf("token carries no student identity")
	}
	return claims.StudentID, nil
}
