package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/agentdesk/internal/credit/domain"
)

// updateCreditsRequest mirrors the credits PATCH body. Amount applies to
// increment and decrement, Value to set.
type updateCreditsRequest struct {
	CreditType string   `json:"credit_type"`
	Operation  string   `json:"operation"`
	Amount     *float64 `json:"amount"`
	Value      *float64 `json:"value"`
	Reason     string   `json:"reason"`
}

func (s *Server) GetCredits(c *gin.Context) {
	snapshot, err := s.creditSvc.Get(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) UpdateCredits(c *gin.Context) {
	var req updateCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creditType, ok := creditdomain.ParseCreditType(req.CreditType)
	if !ok {
		AbortWithError(c, creditdomain.ErrInvalidCreditType)
		return
	}
	op, ok := creditdomain.ParseOperation(req.Operation)
	if !ok {
		AbortWithError(c, creditdomain.ErrInvalidOperation)
		return
	}

	snapshot, err := s.creditSvc.Apply(c.Request.Context(), c.Param("org"), creditdomain.ApplyRequest{
		CreditType: creditType,
		Operation:  op,
		Amount:     req.Amount,
		Value:      req.Value,
		Reason:     req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) ListCreditHistory(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.creditSvc.ListHistory(c.Request.Context(), c.Param("org"), creditdomain.ListHistoryRequest{
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
