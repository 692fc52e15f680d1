package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/api"
	"github.com/Skufu/cardioscore/internal/classifier"
	"github.com/Skufu/cardioscore/internal/config"
	"github.com/Skufu/cardioscore/internal/features"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func baseConfig() *config.Config {
	return &config.Config{
		Port:         "8080",
		ModelPath:    "../../models/heart_forest.json",
		PolicyPath:   "../../configs/policy.yaml",
		ThalEncoding: features.ThalStandard,
		HistoryLimit: 10,
		MaxBodyBytes: 1 << 20,
	}
}

func TestBuildWiresInMemoryStack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := build(context.Background(), baseConfig(), quietLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close()

	if len(a.deps.Checks) != 0 || a.deps.Stats == nil || !a.deps.Adapter.Ready() {
		t.Fatalf("unexpected deps: %+v", a.deps)
	}

	router := api.NewRouter(a.deps)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/predictions", strings.NewReader(`{"features":{
		"age":63,"sex":1,"cp":3,"trestbps":145,"chol":233,"fbs":1,"restecg":0,
		"thalach":150,"exang":0,"oldpeak":2.3,"slope":0,"ca":0,"thal":1}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBuildFailsWithoutModel(t *testing.T) {
	cfg := baseConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := build(context.Background(), cfg, quietLogger()); !errors.Is(err, classifier.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestBuildRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  critical: 0.3\n  high: 0.6\n  moderate: 0.4\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	cfg := baseConfig()
	cfg.PolicyPath = path
	if _, err := build(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected policy error")
	}
}

func TestConnectDBRejectsBadURL(t *testing.T) {
	if _, err := connectDB(context.Background(), "::not a url::"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAppCloseLogsFailuresInReverseOrder(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	var order []string
	a := &app{log: log}
	a.onClose("postgres", closerFunc(func() error { order = append(order, "postgres"); return nil }))
	a.onClose("kafka", closerFunc(func() error { order = append(order, "kafka"); return errors.New("broker gone") }))
	a.close()

	if strings.Join(order, ",") != "kafka,postgres" {
		t.Fatalf("expected reverse close order, got %v", order)
	}
	out := buf.String()
	if !strings.Contains(out, `"resource":"kafka"`) || !strings.Contains(out, "broker gone") {
		t.Fatalf("close failure was not logged: %s", out)
	}
	if strings.Contains(out, `"resource":"postgres"`) {
		t.Fatalf("successful close should not log: %s", out)
	}

	a.close()
	if len(order) != 2 {
		t.Fatal("closers should run once")
	}
}
