package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/meeting-scribe/internal/audio"
	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/eleven-am/meeting-scribe/internal/persist"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	classifier := audio.NewSilenceClassifier(audio.SilenceConfig{})
	buffer := intake.NewUtteranceBuffer(intake.BufferConfig{})
	pool := intake.NewStreamPool(intake.PoolConfig{})
	queue := persist.NewQueue(persist.QueueConfig{})

	return NewHandler(db, redisClient, classifier, buffer, pool, queue, "test")
}

func doRequest(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Liveness(t *testing.T) {
	rec := doRequest(t, setupHandler(t), "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Readiness(t *testing.T) {
	rec := doRequest(t, setupHandler(t), "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ReadyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	for _, name := range []string{"database", "redis"} {
		comp, ok := resp.Components[name]
		if !ok {
			t.Errorf("missing component %s", name)
			continue
		}
		if comp.Status != StatusHealthy {
			t.Errorf("expected %s healthy, got %s (%s)", name, comp.Status, comp.Error)
		}
	}
}

func TestHandler_ReadinessUnhealthyWithoutDB(t *testing.T) {
	h := setupHandler(t)
	h.db = nil

	rec := doRequest(t, h, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandler_Pipeline(t *testing.T) {
	rec := doRequest(t, setupHandler(t), "/health/pipeline")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp PipelineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.OpenBuffers != 0 {
		t.Errorf("expected 0 open buffers, got %d", resp.OpenBuffers)
	}
	if resp.LiveConnections != 0 {
		t.Errorf("expected 0 live connections, got %d", resp.LiveConnections)
	}
	if resp.Runtime.Goroutines <= 0 {
		t.Error("expected runtime stats populated")
	}
}
