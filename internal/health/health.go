// Package health reports readiness from the database and the policy engine, for the gRPC
// health service and the HTTP probes.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds one readiness check.
const checkTimeout = 2 * time.Second

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check that the policy engine can evaluate (e.g. the OPA authorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker combines the readiness dependencies. Either may be nil and is then skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first failing dependency.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Update sets the overall status of hs from one Check.
func (c *Checker) Update(ctx context.Context, hs *health.Server) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		log.Warn().Err(err).Msg("health: not ready")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
}

// Watch calls Update every interval until ctx is done, then marks hs as shutting down.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration) {
	c.Update(ctx, hs)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			c.Update(ctx, hs)
		}
	}
}

// Liveness handles GET /healthz.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz.
func (c *Checker) Readiness(g *gin.Context) {
	if err := c.Check(g.Request.Context()); err != nil {
		g.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	g.JSON(http.StatusOK, gin.H{"status": "ready"})
}
