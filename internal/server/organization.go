package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name                           string `json:"name"`
	CreditsPlan                    string `json:"credits_plan"`
	AvailableIndianChannels        int    `json:"available_indian_channels"`
	AvailableInternationalChannels int    `json:"available_international_channels"`
}

type updateOrganizationRequest struct {
	Name                           *string `json:"name"`
	CreditsPlan                    *string `json:"credits_plan"`
	AvailableIndianChannels        *int    `json:"available_indian_channels"`
	AvailableInternationalChannels *int    `json:"available_international_channels"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name:                           strings.TrimSpace(req.Name),
		CreditsPlan:                    parseCreditsPlan(req.CreditsPlan),
		AvailableIndianChannels:        req.AvailableIndianChannels,
		AvailableInternationalChannels: req.AvailableInternationalChannels,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) ListOrganizations(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.List(c.Request.Context(), organizationdomain.ListOrganizationRequest{
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.Get(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := organizationdomain.UpdateOrganizationRequest{
		Name:                           req.Name,
		AvailableIndianChannels:        req.AvailableIndianChannels,
		AvailableInternationalChannels: req.AvailableInternationalChannels,
	}
	if req.CreditsPlan != nil {
		plan := parseCreditsPlan(*req.CreditsPlan)
		update.CreditsPlan = &plan
	}

	org, err := s.organizationSvc.Update(c.Request.Context(), c.Param("org"), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	if err := s.organizationSvc.Delete(c.Request.Context(), c.Param("org")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DisableOrganization(c *gin.Context) {
	s.setOrganizationDisabled(c, true)
}

func (s *Server) EnableOrganization(c *gin.Context) {
	s.setOrganizationDisabled(c, false)
}

func (s *Server) setOrganizationDisabled(c *gin.Context, disabled bool) {
	org, err := s.organizationSvc.SetDisabled(c.Request.Context(), c.Param("org"), disabled)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

// parseCreditsPlan upper-cases the plan so "message" and "MESSAGE" match.
// An empty value stays empty and falls back to the service default.
func parseCreditsPlan(value string) organizationdomain.CreditsPlan {
	return organizationdomain.CreditsPlan(strings.ToUpper(strings.TrimSpace(value)))
}
