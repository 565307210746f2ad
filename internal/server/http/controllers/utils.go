package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// writeError writes an error response with the given status code and message.
func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// parseLimit parses a limit string, clamping it to max. Empty or invalid
// values yield def.
func parseLimit(s string, def, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// parseInt64 parses a positive decimal id.
func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil && n > 0
}
