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

package actions

import (
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/resilience"
)

// Feature names used as action routes.
const (
	FeatureAssistant          = "assistant"
	FeatureAgriExpert         = "agri-expert"
	FeatureCropRecommendation = "crop-recommendation"
	FeatureProfitPredictor    = "profit-predictor"
	FeatureDamageCost         = "damage-cost"
	FeatureDiseaseDetection   = "disease-detection"
	FeatureEncyclopedia       = "encyclopedia"
	FeatureCommunityFeed      = "community-feed"
	FeatureCommunityInsights  = "community-insights"
	FeatureWeatherPlan        = "weather-plan"
)

// Suite holds one action per feature screen.
type Suite struct {
	Assistant          *Action[advisory.FarmerQuestionInput, advisory.AnswerOutput]
	AgriExpert         *Action[advisory.ExpertQuestionInput, advisory.AnswerOutput]
	CropRecommendation *Action[advisory.CropRecommendationInput, advisory.CropRecommendationOutput]
	ProfitPredictor    *Action[advisory.ProfitPredictionInput, advisory.ProfitPredictionOutput]
	Encyclopedia       *Action[advisory.EncyclopediaInput, advisory.EncyclopediaOutput]
	CommunityFeed      *Action[advisory.CommunityFeedInput, advisory.CommunityFeedOutput]
	CommunityInsights  *Action[advisory.CommunityInsightsInput, advisory.CommunityInsightsOutput]
	WeatherPlan        *Action[advisory.WeatherPlanInput, advisory.WeatherPlanOutput]
	DiseaseDetection   *DiseaseDetection
	Averages           *Averages
}

// NewSuite wraps every flow of flows in its form action.
func NewSuite(flows *advisory.Suite, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := WithLogger(logger)

	return &Suite{
		Assistant:          New[advisory.FarmerQuestionInput, advisory.AnswerOutput](flows.FarmerQA, log),
		AgriExpert:         New[advisory.ExpertQuestionInput, advisory.AnswerOutput](flows.ExpertQA, log),
		CropRecommendation: New[advisory.CropRecommendationInput, advisory.CropRecommendationOutput](flows.CropRecommendation, log),
		ProfitPredictor: New[advisory.ProfitPredictionInput, advisory.ProfitPredictionOutput](flows.ProfitPrediction, log,
			WithIgnoredFields("useAverageYield", "useAveragePrice", "useAverageCost")),
		Encyclopedia: New[advisory.EncyclopediaInput, advisory.EncyclopediaOutput](flows.Encyclopedia, log,
			WithFallbackMessage("An unexpected error occurred while fetching the encyclopedia entry.")),
		CommunityFeed: New[advisory.CommunityFeedInput, advisory.CommunityFeedOutput](flows.CommunityFeed, log,
			WithTransientFields("postContent"),
			WithFallbackMessage("An unexpected error occurred while fetching the community feed.")),
		CommunityInsights: New[advisory.CommunityInsightsInput, advisory.CommunityInsightsOutput](flows.CommunityInsights, log,
			WithFallbackMessage("An unexpected error occurred while fetching community insights.")),
		WeatherPlan: New[advisory.WeatherPlanInput, advisory.WeatherPlanOutput](flows.WeatherPlan, log,
			WithFallbackMessage("An unexpected error occurred while generating the plan.")),
		DiseaseDetection: &DiseaseDetection{
			detect: New[advisory.DiseaseDetectionInput, advisory.DiseaseDetectionOutput](flows.DiseaseDetection, log,
				WithFallbackMessage("An unexpected error occurred while analyzing the image.")),
			damage: New[advisory.DamageCostInput, advisory.DamageCostOutput](flows.DamageCost, log,
				WithFallbackMessage("An unexpected error occurred while calculating the cost.")),
		},
		Averages: &Averages{
			invoker: flows.RegionalAverages,
			errors:  resilience.NewErrorHandler(logger),
		},
	}
}
