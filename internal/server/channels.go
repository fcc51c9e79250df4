package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	channeldomain "github.com/smallbiznis/agentdesk/internal/channel/domain"
)

func (s *Server) GetAvailableChannels(c *gin.Context) {
	availability, err := s.channelSvc.GetAvailableChannels(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": availability})
}

func (s *Server) StartCall(c *gin.Context) {
	state, err := s.channelSvc.IncrementActiveCalls(c.Request.Context(), c.Param("org"), channeldomain.Region(c.Param("region")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}

func (s *Server) EndCall(c *gin.Context) {
	state, err := s.channelSvc.DecrementActiveCalls(c.Request.Context(), c.Param("org"), channeldomain.Region(c.Param("region")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}
