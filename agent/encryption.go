package agent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go.dedis.ch/mpcagent/distribute"
	"go.dedis.ch/mpcagent/fetch"
	"go.dedis.ch/mpcagent/types"
)

// EncryptionServer serves the distribution API of one encryption agent
type EncryptionServer struct {
	router  *gin.Engine
	gateway fetch.Gateway
	client  *distribute.Client
	listen  string
}

// NewEncryptionServer creates the server and registers its routes
func NewEncryptionServer(listen string, gateway fetch.Gateway, client *distribute.Client) *EncryptionServer {
	gin.SetMode(gin.ReleaseMode)

	s := &EncryptionServer{
		router:  gin.Default(),
		gateway: gateway,
		client:  client,
		listen:  listen,
	}

	s.router.POST("/distribute", s.distributeHandler)

	return s
}

// Start blocks serving the API
func (s *EncryptionServer) Start() error {
	log.Info().Str("listen", s.listen).Msg("encryption agent listening")
	return s.router.Run(s.listen)
}

// Router exposes the route engine, used by tests to drive requests
func (s *EncryptionServer) Router() *gin.Engine {
	return s.router
}

func (s *EncryptionServer) distributeHandler(c *gin.Context) {
	var req types.DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CircuitID == "" || req.DataURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid distribute request"})
		return
	}

	raw, err := s.gateway.Fetch(c.Request.Context(), req.DataURI)
	if err != nil {
		log.Warn().Str("circuit", req.CircuitID).Msgf("data fetch failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	report, err := s.client.Distribute(c.Request.Context(), raw, req.CircuitID)
	if err != nil && !errors.Is(err, distribute.ErrPartialDistribution) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// a partial distribution is a first-class outcome: the caller gets the
	// per-agent detail and decides whether to resend
	c.JSON(http.StatusOK, report.Response())
}
