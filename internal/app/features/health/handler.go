// internal/app/features/health/handler.go
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler reports whether the service can reach its backends.
type Handler struct {
	Client *mongo.Client
	Log    *zap.Logger
}

func NewHandler(client *mongo.Client, logger *zap.Logger) *Handler {
	return &Handler{Client: client, Log: logger}
}

type check struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status string           `json:"status"`
	Checks map[string]check `json:"checks"`
}

// Serve handles GET /health: 200 when every backend answers, 503 otherwise.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]check{}}
	status := http.StatusOK

	start := time.Now()
	mongoCheck := check{Status: "ok"}
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		mongoCheck.Status = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	mongoCheck.LatencyMS = time.Since(start).Milliseconds()
	resp.Checks["mongo"] = mongoCheck

	apierr.WriteJSON(w, status, resp)
}
