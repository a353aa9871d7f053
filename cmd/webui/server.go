// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/actions"
	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/audit"
	"github.com/your-org/agrigenius/internal/bootstrap"
	"github.com/your-org/agrigenius/internal/resilience"
)

const recentInvocationsLimit = 50

// WebUIServer serves form actions and the flow API.
type WebUIServer struct {
	app            *bootstrap.App
	logger         *zap.Logger
	errors         *resilience.ErrorHandler
	maxUploadBytes int64
	allowedOrigins []string
}

// NewWebUIServer creates a server for a built application.
func NewWebUIServer(app *bootstrap.App, logger *zap.Logger) *WebUIServer {
	maxUpload := app.Config.Server.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 8
	}
	return &WebUIServer{
		app:            app,
		logger:         logger,
		errors:         resilience.NewErrorHandler(logger),
		maxUploadBytes: int64(maxUpload) << 20,
		allowedOrigins: app.Config.Server.AllowedOrigins,
	}
}

// Router builds the gin engine with middleware and routes.
func (s *WebUIServer) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestID())
	router.Use(otelgin.Middleware(bootstrap.ServiceName))
	router.Use(requestLogger(s.logger))
	router.Use(recovery(s.logger))
	if policy := corsPolicy(s.allowedOrigins); policy != nil {
		router.Use(policy)
	}

	router.GET("/health", s.app.Health.Handler())

	api := router.Group("/api")
	api.GET("/flows", s.handleListFlows)
	api.POST("/flows/:name", s.handleRunFlow)
	api.GET("/audit/recent", s.handleRecentInvocations)
	api.GET("/audit/stats", s.handleAuditStats)

	router.POST("/actions/profit-predictor/averages", s.handleAverages)
	router.POST("/actions/:feature", s.handleAction)

	return router
}

func (s *WebUIServer) handleListFlows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flows": s.app.Registry.Catalogue()})
}

// handleRunFlow runs one flow and returns its validated output, or a
// classified error response.
func (s *WebUIServer) handleRunFlow(c *gin.Context) {
	name := c.Param("name")
	runner, err := s.app.Registry.Get(name)
	if err != nil {
		s.writeError(c, err)
		return
	}

	form, err := s.readForm(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if name == advisory.FlowFarmerQA {
		form[languageField] = resolveLanguage(c, form)
	}

	result, err := runner.Run(c.Request.Context(), form)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flow":       name,
		"result":     result,
		"request_id": requestIDOf(c),
	})
}

// handleAction submits a form action. The response is always the next state;
// failures are carried inside it.
func (s *WebUIServer) handleAction(c *gin.Context) {
	form, err := s.readForm(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	prev := form[prevStateField]
	delete(form, prevStateField)

	ctx := c.Request.Context()
	suite := s.app.Actions

	var state any
	switch feature := c.Param("feature"); feature {
	case actions.FeatureAssistant:
		form[languageField] = resolveLanguage(c, form)
		state = submit(ctx, s.logger, suite.Assistant, prev, form)
	case actions.FeatureAgriExpert:
		state = submit(ctx, s.logger, suite.AgriExpert, prev, form)
	case actions.FeatureCropRecommendation:
		state = submit(ctx, s.logger, suite.CropRecommendation, prev, form)
	case actions.FeatureProfitPredictor:
		state = submit(ctx, s.logger, suite.ProfitPredictor, prev, form)
	case actions.FeatureEncyclopedia:
		state = submit(ctx, s.logger, suite.Encyclopedia, prev, form)
	case actions.FeatureCommunityFeed:
		state = submit(ctx, s.logger, suite.CommunityFeed, prev, form)
	case actions.FeatureCommunityInsights:
		state = submit(ctx, s.logger, suite.CommunityInsights, prev, form)
	case actions.FeatureWeatherPlan:
		state = submit(ctx, s.logger, suite.WeatherPlan, prev, form)
	case actions.FeatureDiseaseDetection:
		var current actions.DiseaseDetectionState
		decodePrevState(s.logger, prev, &current)
		state = suite.DiseaseDetection.Detect(ctx, current, form)
	case actions.FeatureDamageCost:
		var current actions.DiseaseDetectionState
		decodePrevState(s.logger, prev, &current)
		state = suite.DiseaseDetection.DamageCost(ctx, current, form)
	default:
		s.writeError(c, resilience.NewNotFoundError("Unknown action: "+feature, nil))
		return
	}

	c.JSON(http.StatusOK, state)
}

func (s *WebUIServer) handleAverages(c *gin.Context) {
	form, err := s.readForm(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.app.Actions.Averages.Fetch(c.Request.Context(), form))
}

func (s *WebUIServer) handleRecentInvocations(c *gin.Context) {
	entries, err := s.app.Ledger.Recent(c.Request.Context(), recentInvocationsLimit)
	if err != nil {
		s.writeError(c, auditError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"invocations": entries})
}

func (s *WebUIServer) handleAuditStats(c *gin.Context) {
	stats, err := s.app.Ledger.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, auditError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func auditError(err error) error {
	if errors.Is(err, audit.ErrUnsupported) {
		return resilience.NewNotFoundError("Invocation queries require sqlite audit storage.", err)
	}
	return err
}

func (s *WebUIServer) writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	s.errors.WriteErrorResponse(c.Writer, err, requestIDOf(c))
	c.Abort()
}

func submit[In, Out any](ctx context.Context, logger *zap.Logger, action *actions.Action[In, Out], prev string, form map[string]string) actions.State[Out] {
	state := actions.Idle[Out]()
	decodePrevState(logger, prev, &state)
	return action.Submit(ctx, state, form)
}

// decodePrevState leaves dst untouched when prev is empty or malformed.
func decodePrevState(logger *zap.Logger, prev string, dst any) {
	if prev == "" {
		return
	}
	if err := json.Unmarshal([]byte(prev), dst); err != nil {
		logger.Debug("Ignoring malformed previous state", zap.Error(err))
	}
}
