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

// Package advisory declares the AgriGenius advisory flows: their input and
// output records, their prompts, and the suite that wires them to a model.
package advisory

import (
	"embed"
	"fmt"

	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/llm"
)

// Flow names.
const (
	FlowFarmerQA           = "farmer-qa"
	FlowExpertQA           = "expert-qa"
	FlowCropRecommendation = "crop-recommendation"
	FlowProfitPrediction   = "profit-prediction"
	FlowRegionalAverages   = "regional-averages"
	FlowDamageCost         = "damage-cost"
	FlowDiseaseDetection   = "disease-detection"
	FlowEncyclopedia       = "encyclopedia"
	FlowEncyclopediaText   = "encyclopedia-text"
	FlowCommunityFeed      = "community-feed"
	FlowCommunityInsights  = "community-insights"
	FlowWeatherPlan        = "weather-plan"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

func mustPrompt(name string) string {
	b, err := promptFS.ReadFile("prompts/" + name + ".tmpl")
	if err != nil {
		panic(fmt.Sprintf("advisory: missing prompt %s: %v", name, err))
	}
	return string(b)
}

// Suite holds every advisory flow bound to one model backend.
type Suite struct {
	FarmerQA           *flow.Flow[FarmerQuestionInput, AnswerOutput]
	ExpertQA           *flow.Flow[ExpertQuestionInput, AnswerOutput]
	CropRecommendation *flow.Flow[CropRecommendationInput, CropRecommendationOutput]
	ProfitPrediction   *flow.Flow[ProfitPredictionInput, ProfitPredictionOutput]
	RegionalAverages   *flow.Flow[RegionalAveragesInput, RegionalAveragesOutput]
	DamageCost         *flow.Flow[DamageCostInput, DamageCostOutput]
	DiseaseDetection   *flow.Flow[DiseaseDetectionInput, DiseaseDetectionOutput]
	Encyclopedia       *Encyclopedia
	CommunityFeed      *flow.Flow[CommunityFeedInput, CommunityFeedOutput]
	CommunityInsights  *flow.Flow[CommunityInsightsInput, CommunityInsightsOutput]
	WeatherPlan        *flow.Flow[WeatherPlanInput, WeatherPlanOutput]
}

// NewSuite builds all flows on gen. images supplies encyclopedia illustrations;
// opts apply to every flow.
func NewSuite(gen llm.Generator, images ImageSource, opts ...flow.Option) *Suite {
	return &Suite{
		FarmerQA: flow.New[FarmerQuestionInput, AnswerOutput](flow.Definition[FarmerQuestionInput]{
			Name:        FlowFarmerQA,
			Description: "Answers farming, crop care and market questions in English, Telugu or Hindi.",
			Prompt:      mustPrompt("farmer_qa"),
		}, gen, opts...),

		ExpertQA: flow.New[ExpertQuestionInput, AnswerOutput](flow.Definition[ExpertQuestionInput]{
			Name:        FlowExpertQA,
			Description: "Gives a detailed agronomist-level answer with scientific reasoning.",
			Prompt:      mustPrompt("expert_qa"),
		}, gen, opts...),

		CropRecommendation: flow.New[CropRecommendationInput, CropRecommendationOutput](flow.Definition[CropRecommendationInput]{
			Name:        FlowCropRecommendation,
			Description: "Ranks the top 3 crops for a farm profile with soil, climate and sustainability analysis.",
			Prompt:      mustPrompt("crop_recommendation"),
		}, gen, opts...),

		ProfitPrediction: flow.New[ProfitPredictionInput, ProfitPredictionOutput](flow.Definition[ProfitPredictionInput]{
			Name:        FlowProfitPrediction,
			Description: "Estimates yield, income, costs and profit, and suggests nearby mandis.",
			Prompt:      mustPrompt("profit_prediction"),
		}, gen, opts...),

		RegionalAverages: flow.New[RegionalAveragesInput, RegionalAveragesOutput](flow.Definition[RegionalAveragesInput]{
			Name:        FlowRegionalAverages,
			Description: "Suggests typical yield, price or cost values for a crop in a region.",
			Prompt:      mustPrompt("regional_averages"),
		}, gen, opts...),

		DamageCost: flow.New[DamageCostInput, DamageCostOutput](flow.Definition[DamageCostInput]{
			Name:        FlowDamageCost,
			Description: "Estimates the yield and financial loss of an untreated crop disease.",
			Prompt:      mustPrompt("damage_cost"),
		}, gen, opts...),

		DiseaseDetection: flow.New[DiseaseDetectionInput, DiseaseDetectionOutput](flow.Definition[DiseaseDetectionInput]{
			Name:        FlowDiseaseDetection,
			Description: "Diagnoses diseases or nutrient deficiencies from a crop photo.",
			Prompt:      mustPrompt("disease_detection"),
			Media: func(in DiseaseDetectionInput) []llm.Media {
				return []llm.Media{{URI: in.PhotoDataURI}}
			},
		}, gen, opts...),

		Encyclopedia: NewEncyclopedia(gen, images, opts...),

		CommunityFeed: flow.New[CommunityFeedInput, CommunityFeedOutput](flow.Definition[CommunityFeedInput]{
			Name:        FlowCommunityFeed,
			Description: "Simulates a local farmers' forum feed, optionally starting with the user's post.",
			Prompt:      mustPrompt("community_feed"),
		}, gen, opts...),

		CommunityInsights: flow.New[CommunityInsightsInput, CommunityInsightsOutput](flow.Definition[CommunityInsightsInput]{
			Name:        FlowCommunityInsights,
			Description: "Summarises common crops, diseases, market trends and treatments for a location.",
			Prompt:      mustPrompt("community_insights"),
		}, gen, opts...),

		WeatherPlan: flow.New[WeatherPlanInput, WeatherPlanOutput](flow.Definition[WeatherPlanInput]{
			Name:        FlowWeatherPlan,
			Description: "Builds a weather-resilient irrigation, fertilizer, pest and harvest plan.",
			Prompt:      mustPrompt("weather_plan"),
		}, gen, opts...),
	}
}

// Registry indexes every flow of the suite by name.
func (s *Suite) Registry() *flow.Registry {
	registry := flow.NewRegistry()
	err := registry.Register(
		flow.Bind[FarmerQuestionInput, AnswerOutput](s.FarmerQA),
		flow.Bind[ExpertQuestionInput, AnswerOutput](s.ExpertQA),
		flow.Bind[CropRecommendationInput, CropRecommendationOutput](s.CropRecommendation),
		flow.Bind[ProfitPredictionInput, ProfitPredictionOutput](s.ProfitPrediction),
		flow.Bind[RegionalAveragesInput, RegionalAveragesOutput](s.RegionalAverages),
		flow.Bind[DamageCostInput, DamageCostOutput](s.DamageCost),
		flow.Bind[DiseaseDetectionInput, DiseaseDetectionOutput](s.DiseaseDetection),
		flow.Bind[EncyclopediaInput, EncyclopediaOutput](s.Encyclopedia),
		flow.Bind[CommunityFeedInput, CommunityFeedOutput](s.CommunityFeed),
		flow.Bind[CommunityInsightsInput, CommunityInsightsOutput](s.CommunityInsights),
		flow.Bind[WeatherPlanInput, WeatherPlanOutput](s.WeatherPlan),
	)
	if err != nil {
		// flow names are constants
		panic(err)
	}
	return registry
}
