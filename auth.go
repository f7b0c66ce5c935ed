package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucianoflow8/flowtracking-receipts/pkg/auth"
)

var jwtSecret []byte // loaded from env JWT_SECRET

// lineAuthMiddleware verifies the line token and checks that its line claim
// matches the :lineId path parameter. The project scope is placed into the
// request context for handlers.
func lineAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		projectID, lineID, err := auth.ParseLineToken(jwtSecret, authHeader[7:])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		if lineID != c.Param("lineId") {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for this line"})
			c.Abort()
			return
		}
		c.Set("project_id", projectID)
		c.Set("line_id", lineID)
		c.Next()
	}
}
