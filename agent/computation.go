// Package agent exposes the HTTP surfaces of the two agent kinds: the
// computation agent's session API and the encryption agent's distribution
// API. Handlers are thin glue over the session manager and the
// distribution client.
package agent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go.dedis.ch/mpcagent/session"
	"go.dedis.ch/mpcagent/types"
)

// ComputationServer serves the session API of one computation agent
type ComputationServer struct {
	router  *gin.Engine
	manager *session.Manager
	listen  string
}

// NewComputationServer creates the server and registers its routes
func NewComputationServer(listen string, manager *session.Manager) *ComputationServer {
	gin.SetMode(gin.ReleaseMode)

	s := &ComputationServer{
		router:  gin.Default(),
		manager: manager,
		listen:  listen,
	}

	s.router.POST("/session", s.submitHandler)
	s.router.GET("/session/:id/status", s.statusHandler)
	s.router.GET("/session/:id/result", s.resultHandler)
	s.router.DELETE("/session/:id", s.cancelHandler)
	s.router.GET("/status", s.poolStatusHandler)

	return s
}

// Start blocks serving the API
func (s *ComputationServer) Start() error {
	log.Info().Str("listen", s.listen).Msg("computation agent listening")
	return s.router.Run(s.listen)
}

// Router exposes the route engine, used by tests to drive requests
func (s *ComputationServer) Router() *gin.Engine {
	return s.router
}

func (s *ComputationServer) submitHandler(c *gin.Context) {
	var env types.ShareEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid share envelope"})
		return
	}
	if env.Share.CircuitID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing circuit id"})
		return
	}

	sess, err := s.manager.Submit(&env)
	if err != nil {
		if errors.Is(err, session.ErrSaturated) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.SubmitResponse{
		SessionID: sess.ID,
		CircuitID: sess.CircuitID,
		State:     sess.State().String(),
	})
}

func (s *ComputationServer) statusHandler(c *gin.Context) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.StatusResponse{
		SessionID: sess.ID,
		CircuitID: sess.CircuitID,
		State:     sess.State().String(),
	})
}

func (s *ComputationServer) resultHandler(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	output, err := s.manager.Result(id)
	if errors.Is(err, session.ErrNotFinished) {
		c.JSON(http.StatusAccepted, types.ResultResponse{
			SessionID: id,
			State:     sess.State().String(),
		})
		return
	}

	resp := types.ResultResponse{
		SessionID: id,
		State:     sess.State().String(),
		Output:    output,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *ComputationServer) cancelHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "cancelled": true})
}

func (s *ComputationServer) poolStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.PoolStatus())
}
