package middleware

import (
	"github.com/gin-gonic/gin"
)

// UserAuth accepts any signed-in account and injects userId and role into
// the context.
func UserAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret)
}
