package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	leaddomain "github.com/smallbiznis/agentdesk/internal/lead/domain"
	"gorm.io/datatypes"
)

type createLeadRequest struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          *string         `json:"phone"`
	Status         string          `json:"status"`
	Source         string          `json:"source"`
	IsIndian       int             `json:"is_indian"`
	NextFollowUp   *time.Time      `json:"next_follow_up"`
	AdditionalInfo json.RawMessage `json:"additional_info"`
}

type updateLeadRequest struct {
	Name              *string         `json:"name"`
	Email             *string         `json:"email"`
	Phone             *string         `json:"phone"`
	Status            *string         `json:"status"`
	Source            *string         `json:"source"`
	IsIndian          *int            `json:"is_indian"`
	NextFollowUp      *time.Time      `json:"next_follow_up"`
	ClearNextFollowUp bool            `json:"clear_next_follow_up"`
	AdditionalInfo    json.RawMessage `json:"additional_info"`
	Logs              json.RawMessage `json:"logs"`
}

type scheduleFollowUpRequest struct {
	NextFollowUp *time.Time `json:"next_follow_up"`
}

type setInProcessRequest struct {
	InProcess *bool `json:"in_process"`
}

func (s *Server) ListPriorityLeads(c *gin.Context) {
	s.listPriorityLeads(c, c.Param("org"))
}

// ListGlobalPriorityLeads spans every organization. The service rejects it
// unless the caller's scope bypasses tenant filters.
func (s *Server) ListGlobalPriorityLeads(c *gin.Context) {
	s.listPriorityLeads(c, "")
}

func (s *Server) listPriorityLeads(c *gin.Context, orgRef string) {
	query, err := parsePriorityQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	query.OrgRef = orgRef

	resp, err := s.leadSvc.ListPriority(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parsePriorityQuery(c *gin.Context) (leaddomain.PriorityQuery, error) {
	page, err := parsePagination(c)
	if err != nil {
		return leaddomain.PriorityQuery{}, err
	}

	start, err := parseOptionalTime(firstQuery(c, "nextFollowUpStart", "next_follow_up_start"), false)
	if err != nil {
		return leaddomain.PriorityQuery{}, newValidationError("nextFollowUpStart", "invalid_time", "expected RFC3339 or YYYY-MM-DD")
	}
	end, err := parseOptionalTime(firstQuery(c, "nextFollowUpEnd", "next_follow_up_end"), true)
	if err != nil {
		return leaddomain.PriorityQuery{}, newValidationError("nextFollowUpEnd", "invalid_time", "expected RFC3339 or YYYY-MM-DD")
	}
	isIndian, err := parseOptionalFlag(c.Query("is_indian"))
	if err != nil {
		return leaddomain.PriorityQuery{}, newValidationError("is_indian", "invalid_flag", "expected 0 or 1")
	}
	inProcess, err := parseOptionalFlag(c.Query("in_process"))
	if err != nil {
		return leaddomain.PriorityQuery{}, newValidationError("in_process", "invalid_flag", "expected 0 or 1")
	}

	return leaddomain.PriorityQuery{
		Start:      start,
		End:        end,
		IsIndian:   isIndian,
		InProcess:  inProcess,
		Pagination: page,
	}, nil
}

func (s *Server) CreateLead(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lead, err := s.leadSvc.Create(c.Request.Context(), c.Param("org"), leaddomain.CreateLeadRequest{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Status:         req.Status,
		Source:         req.Source,
		IsIndian:       req.IsIndian,
		NextFollowUp:   req.NextFollowUp,
		AdditionalInfo: rawJSON(req.AdditionalInfo),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": lead})
}

func (s *Server) GetLead(c *gin.Context) {
	lead, err := s.leadSvc.Get(c.Request.Context(), c.Param("org"), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) UpdateLead(c *gin.Context) {
	var req updateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lead, err := s.leadSvc.Update(c.Request.Context(), c.Param("org"), c.Param("id"), leaddomain.UpdateLeadRequest{
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		Status:            req.Status,
		Source:            req.Source,
		IsIndian:          req.IsIndian,
		NextFollowUp:      req.NextFollowUp,
		ClearNextFollowUp: req.ClearNextFollowUp,
		AdditionalInfo:    rawJSON(req.AdditionalInfo),
		Logs:              rawJSON(req.Logs),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) DeleteLead(c *gin.Context) {
	hard, err := parseOptionalBool(c.Query("hard"))
	if err != nil {
		AbortWithError(c, newValidationError("hard", "invalid_hard", "expected a boolean"))
		return
	}

	if err := s.leadSvc.Delete(c.Request.Context(), c.Param("org"), c.Param("id"), hard != nil && *hard); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ScheduleLeadFollowUp(c *gin.Context) {
	var req scheduleFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.NextFollowUp == nil {
		AbortWithError(c, newValidationError("next_follow_up", "required", "next_follow_up is required"))
		return
	}

	lead, err := s.leadSvc.ScheduleFollowUp(c.Request.Context(), c.Param("org"), c.Param("id"), *req.NextFollowUp)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) SetLeadInProcess(c *gin.Context) {
	var req setInProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.InProcess == nil {
		AbortWithError(c, newValidationError("in_process", "required", "in_process is required"))
		return
	}

	lead, err := s.leadSvc.SetInProcess(c.Request.Context(), c.Param("org"), c.Param("id"), *req.InProcess)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func rawJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}
