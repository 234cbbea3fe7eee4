package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/neuronote/internal/common"
)

func (h *Handler) Root(c *gin.Context) {
	common.OK(c, http.StatusOK, gin.H{"message": "Welcome to NeuroNote EHR summarization"})
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, http.StatusOK, gin.H{"message": "pong"})
}
