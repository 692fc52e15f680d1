package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/cardioscore/internal/classifier"
	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/session"
)

type predictRequest struct {
	SessionID string       `json:"session_id"`
	Patient   string       `json:"patient"`
	Features  features.Raw `json:"features"`
}

type patientRequest struct {
	Name     string       `json:"name" binding:"required"`
	Features features.Raw `json:"features" binding:"required"`
}

type fieldView struct {
	features.Field
	Kind       string `json:"kind"`
	Constraint string `json:"constraint"`
}

func (s *server) schema(c *gin.Context) {
	sc := s.Builder.Schema()
	fields := sc.Fields()
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		kind := "range"
		if f.Kind == features.KindEnum {
			kind = "enum"
		}
		out = append(out, fieldView{Field: f, Kind: kind, Constraint: f.Constraint()})
	}
	c.JSON(http.StatusOK, gin.H{
		"thal_encoding": sc.Encoding(),
		"fields":        out,
	})
}

func (s *server) model(c *gin.Context) {
	if s.Artifact == nil || !s.Adapter.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"type":                s.Artifact.Type,
		"feature_names":       s.Artifact.FeatureNames,
		"num_features":        s.Artifact.NumFeatures(),
		"num_trees":           s.Artifact.NumTrees(),
		"feature_importances": s.Artifact.Importances(),
		"metadata":            s.Artifact.Metadata,
		"thresholds":          s.Builder.Policy().Thresholds,
	})
}

func (s *server) stats(c *gin.Context) {
	if s.Stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction log disabled"})
		return
	}
	stats, err := s.Stats.Statistics(c.Request.Context())
	if err != nil {
		requestLog(c, s.Log).WithError(err).Error("statistics query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "statistics_unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *server) predict(c *gin.Context) {
	var payload predictRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		bindError(c, err)
		return
	}
	if payload.SessionID != "" && !session.ValidID(payload.SessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}

	format := strings.ToLower(c.Query("format"))
	var renderer report.Renderer
	if format != "" && format != "json" {
		r, ok := report.RendererFor(format, s.Builder.Schema().Names())
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
			return
		}
		renderer = r
	}

	ctx := c.Request.Context()
	raw := payload.Features
	if len(raw) == 0 && payload.SessionID != "" && payload.Patient != "" {
		saved, err := s.Sessions.Patient(ctx, payload.SessionID, payload.Patient)
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "patient_not_found"})
			return
		case err != nil:
			requestLog(c, s.Log).WithError(err).Error("load saved patient failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
			return
		}
		raw = features.Raw{}
		for k, v := range saved.Features {
			raw[k] = v
		}
	}

	req := report.Request{Patient: payload.Patient}
	if payload.SessionID != "" {
		req.History = session.Recorder(s.Sessions, payload.SessionID)
	}

	outcome, err := s.Builder.Build(ctx, raw, req)
	if err != nil {
		var ve *features.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "validation_failed",
				"violations": ve.Violations,
				"messages":   ve.Messages(),
			})
			return
		case errors.Is(err, report.ErrHistoryAppend):
			requestLog(c, s.Log).WithError(err).WithField("session_id", payload.SessionID).Warn("prediction not recorded in session history")
		case errors.Is(err, classifier.ErrModelUnavailable):
			requestLog(c, s.Log).WithError(err).Error("prediction with no model loaded")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model_unavailable"})
			return
		default:
			requestLog(c, s.Log).WithError(err).Error("prediction failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction_failed"})
			return
		}
	}

	if renderer == nil {
		c.JSON(http.StatusOK, outcome)
		return
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, payload.Patient, outcome); err != nil {
		requestLog(c, s.Log).WithError(err).Error("render report failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=prediction_%s.%s", outcome.ID, extension(format)))
	c.Data(http.StatusOK, renderer.ContentType(), buf.Bytes())
}

func (s *server) history(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	entries, err := s.Sessions.History(c.Request.Context(), id)
	if err != nil {
		requestLog(c, s.Log).WithError(err).Error("load history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}

	switch format := strings.ToLower(c.Query("format")); format {
	case "", "json":
		c.JSON(http.StatusOK, gin.H{"session_id": id, "history": entries})
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteHistoryCSV(&buf, entries); err != nil {
			requestLog(c, s.Log).WithError(err).Error("export history failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=history_%s.csv", id))
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
	}
}

func (s *server) savePatient(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var payload patientRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		bindError(c, err)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	res := s.Builder.Schema().Validate(payload.Features)
	if !res.Valid() {
		var ve *features.ValidationError
		errors.As(res.Err(), &ve)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "validation_failed",
			"violations": ve.Violations,
			"messages":   ve.Messages(),
		})
		return
	}

	p := session.Patient{Name: payload.Name, Features: res.Features.Map(), SavedAt: s.Now().UTC()}
	if err := s.Sessions.SavePatient(c.Request.Context(), id, p); err != nil {
		requestLog(c, s.Log).WithError(err).Error("save patient failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *server) listPatients(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	patients, err := s.Sessions.Patients(c.Request.Context(), id)
	if err != nil {
		requestLog(c, s.Log).WithError(err).Error("list patients failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "patients": patients})
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !session.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return "", false
	}
	return id, true
}

func bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
}

func extension(format string) string {
	if format == "text" {
		return "txt"
	}
	return format
}
