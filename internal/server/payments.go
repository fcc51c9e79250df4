package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/agentdesk/internal/payment/domain"
)

// recordPaymentRequest carries a settled top-up. Amount is in minor units of
// Currency; Credits is what the payment buys on CreditType.
type recordPaymentRequest struct {
	Reference  string  `json:"reference"`
	Amount     int64   `json:"amount"`
	Currency   string  `json:"currency"`
	CreditType string  `json:"credit_type"`
	Credits    float64 `json:"credits"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Record(c.Request.Context(), c.Param("org"), paymentdomain.RecordPaymentRequest{
		Reference:  req.Reference,
		Amount:     req.Amount,
		Currency:   req.Currency,
		CreditType: req.CreditType,
		Credits:    req.Credits,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), c.Param("org"), paymentdomain.ListPaymentRequest{
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
