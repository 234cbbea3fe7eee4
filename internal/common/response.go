package common

import "github.com/gin-gonic/gin"

// OK writes data as a JSON body with the given status.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Fail writes {"error": msg} with the given status.
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
