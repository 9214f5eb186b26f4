package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderCallbackSecret = "X-Callback-Secret"

// CallbackSecret guards workflow callbacks with a shared secret. An empty
// secret disables the check.
func CallbackSecret(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(HeaderCallbackSecret))
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abortUnauthorized(c, "invalid callback secret")
			return
		}
		c.Next()
	}
}
