package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	costdomain "github.com/smallbiznis/agentdesk/internal/cost/domain"
)

type createCostRequest struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	ConversationID *string `json:"conversation_id"`
	CallID         *string `json:"call_id"`
	MessageID      *string `json:"message_id"`
	Description    string  `json:"description"`
}

func (s *Server) CreateCost(c *gin.Context) {
	var req createCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cost, err := s.costSvc.Create(c.Request.Context(), c.Param("org"), costdomain.CreateCostRequest{
		Type:           req.Type,
		Amount:         req.Amount,
		ConversationID: req.ConversationID,
		CallID:         req.CallID,
		MessageID:      req.MessageID,
		Description:    req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": cost})
}

func (s *Server) ListCosts(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.costSvc.List(c.Request.Context(), c.Param("org"), costdomain.ListCostRequest{
		Type:       c.Query("type"),
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCost(c *gin.Context) {
	if err := s.costSvc.Delete(c.Request.Context(), c.Param("org"), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
