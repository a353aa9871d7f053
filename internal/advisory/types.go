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

package advisory

// Language selects the reply language of the farmer assistant.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTelugu  Language = "te"
	LanguageHindi   Language = "hi"
)

// Languages lists the supported languages.
var Languages = []Language{LanguageEnglish, LanguageTelugu, LanguageHindi}

// FarmerQuestionInput is a question for the general farming assistant.
type FarmerQuestionInput struct {
	Query    string   `form:"query" label:"Query" validate:"required"`
	Language Language `form:"language" label:"Language" default:"en" validate:"oneof=en te hi"`
}

// ExpertQuestionInput is a question for the agronomy expert.
type ExpertQuestionInput struct {
	Query string `form:"query" label:"Query" validate:"required"`
}

// AnswerOutput is the reply of either question-answering flow.
type AnswerOutput struct {
	Answer string `json:"answer" description:"The answer to the farmer's question."`
}

// CropRecommendationInput is a farm profile with soil, weather and market data.
type CropRecommendationInput struct {
	Location            string  `form:"location" label:"Location" validate:"required"`
	LandSize            float64 `form:"landSize" label:"Land size" validate:"gte=0.1" msg:"Land size must be positive."`
	SoilPH              float64 `form:"soilPH" label:"Soil pH" validate:"gte=0,lte=14" msg:"Soil pH must be between 0 and 14."`
	SoilNitrogen        float64 `form:"soilNitrogen" label:"Soil nitrogen" validate:"gte=0" msg:"Soil nitrogen cannot be negative."`
	SoilPhosphorus      float64 `form:"soilPhosphorus" label:"Soil phosphorus" validate:"gte=0" msg:"Soil phosphorus cannot be negative."`
	SoilPotassium       float64 `form:"soilPotassium" label:"Soil potassium" validate:"gte=0" msg:"Soil potassium cannot be negative."`
	WeatherForecast     string  `form:"weatherForecast" label:"Weather forecast" validate:"required"`
	CropRotationHistory string  `form:"cropRotationHistory" label:"Crop rotation history" validate:"required"`
	MarketTrends        string  `form:"marketTrends" label:"Market trends" validate:"required"`
}

// CropRecommendation is one ranked crop.
type CropRecommendation struct {
	CropName            string  `json:"cropName" description:"The name of the recommended crop."`
	ExpectedYield       string  `json:"expectedYield" description:"The expected yield for the crop."`
	ProfitMargin        string  `json:"profitMargin" description:"The expected profit margin for the crop."`
	SustainabilityScore float64 `json:"sustainabilityScore" description:"Sustainability of the crop from 0 to 100." validate:"gte=0,lte=100"`
	Rationale           string  `json:"rationale" description:"Why this crop is recommended."`
}

// CropRecommendationOutput is the ranked recommendation with its analysis.
type CropRecommendationOutput struct {
	Recommendations           []CropRecommendation `json:"recommendations" description:"The top 3 crops, best first." validate:"dive"`
	SoilAnalysis              string               `json:"soilAnalysis" description:"Analysis of the soil parameters and their implications for the recommended crops."`
	FeatureCorrelation        string               `json:"featureCorrelation" description:"How the input features correlate and influence the recommendations."`
	ClimateSoilCropModeling   string               `json:"climateSoilCropModeling" description:"Interaction between climate, soil and the top recommended crop."`
	SustainableFarmingSupport string               `json:"sustainableFarmingSupport" description:"Actionable sustainable farming advice for the recommendations."`
}

// ProfitPredictionInput is a planned crop with yield, price and cost assumptions.
type ProfitPredictionInput struct {
	CropType             string  `form:"cropType" label:"Crop type" validate:"required"`
	LandSizeAcres        float64 `form:"landSizeAcres" label:"Land size" validate:"gte=0.1" msg:"Land size must be positive."`
	ExpectedYieldPerAcre float64 `form:"expectedYieldPerAcre" label:"Expected yield" validate:"gte=0" msg:"Expected yield cannot be negative."`
	SellingPricePerUnit  float64 `form:"sellingPricePerUnit" label:"Selling price" validate:"gte=0" msg:"Selling price cannot be negative."`
	InputCostsPerAcre    float64 `form:"inputCostsPerAcre" label:"Input costs" validate:"gte=0" msg:"Input costs cannot be negative."`
	Location             string  `form:"location" label:"Location" validate:"required"`
}

// MarketSuggestion is a nearby mandi to sell at.
type MarketSuggestion struct {
	MandiName       string  `json:"mandiName" description:"The name of the suggested mandi (market)."`
	Distance        string  `json:"distance" description:"Approximate distance from the user's location."`
	EstimatedPrice  float64 `json:"estimatedPrice" description:"Estimated selling price per unit at this mandi."`
	PotentialProfit float64 `json:"potentialProfit" description:"Potential total profit when selling at this mandi."`
	Pros            string  `json:"pros" description:"A brief advantage of selling at this mandi."`
}

// ProfitPredictionOutput is the model's profit estimate.
type ProfitPredictionOutput struct {
	ExpectedYield       float64            `json:"expectedYield" description:"Total expected yield for the land size."`
	ExpectedIncome      float64            `json:"expectedIncome" description:"Total expected income from selling the crop."`
	TotalInputCosts     float64            `json:"totalInputCosts" description:"Total input costs for the land size."`
	EstimatedProfitLoss float64            `json:"estimatedProfitLoss" description:"Estimated profit, negative for a loss."`
	MarketSuggestions   []MarketSuggestion `json:"marketSuggestions,omitempty" description:"The 3 best nearby mandis to sell the crop."`
}

// Averaged fields a farmer can ask the model to fill in.
const (
	FieldExpectedYieldPerAcre = "expectedYieldPerAcre"
	FieldSellingPricePerUnit  = "sellingPricePerUnit"
	FieldInputCostsPerAcre    = "inputCostsPerAcre"
)

// RegionalAveragesInput asks for typical values of some profit inputs.
type RegionalAveragesInput struct {
	Location string   `form:"location" label:"Location" validate:"required"`
	CropType string   `form:"cropType" label:"Crop type" validate:"required"`
	Fields   []string `form:"fields" label:"Fields" validate:"min=1,dive,oneof=expectedYieldPerAcre sellingPricePerUnit inputCostsPerAcre" msg:"Fields must list expectedYieldPerAcre, sellingPricePerUnit or inputCostsPerAcre."`
}

// RegionalAveragesOutput holds only the requested fields. A nil field was not
// requested; a zero one is a real estimate.
type RegionalAveragesOutput struct {
	ExpectedYieldPerAcre *float64 `json:"expectedYieldPerAcre,omitempty"`
	SellingPricePerUnit  *float64 `json:"sellingPricePerUnit,omitempty"`
	InputCostsPerAcre    *float64 `json:"inputCostsPerAcre,omitempty"`
}

// Severity is the observed severity of a crop disease.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// DamageCostInput describes a detected disease on a crop.
type DamageCostInput struct {
	CropType             string   `form:"cropType" label:"Crop type" validate:"required"`
	LandSizeAcres        float64  `form:"landSizeAcres" label:"Land size" validate:"gte=0.1" msg:"Land size must be positive."`
	ExpectedYieldPerAcre float64  `form:"expectedYieldPerAcre" label:"Expected yield" validate:"gte=0" msg:"Expected yield cannot be negative."`
	SellingPricePerUnit  float64  `form:"sellingPricePerUnit" label:"Selling price" validate:"gte=0" msg:"Selling price cannot be negative."`
	DiseaseName          string   `form:"diseaseName" label:"Disease name" validate:"required"`
	DiseaseSeverity      Severity `form:"diseaseSeverity" label:"Disease severity" validate:"oneof=Low Medium High"`
}

// DamageCostOutput is the estimated loss if the disease goes untreated.
type DamageCostOutput struct {
	EstimatedYieldLossPercentage string  `json:"estimatedYieldLossPercentage" description:"The estimated yield loss as a percentage range, e.g. \"5-15%\"."`
	EstimatedYieldLossQuantity   float64 `json:"estimatedYieldLossQuantity" description:"Estimated total yield loss in kg."`
	EstimatedFinancialLoss       float64 `json:"estimatedFinancialLoss" description:"Estimated total financial loss in local currency."`
	Recommendation               string  `json:"recommendation" description:"A brief, urgent recommendation to mitigate the loss."`
}

// DiseaseDetectionInput carries a crop photo as a base64 data URI.
type DiseaseDetectionInput struct {
	PhotoDataURI string `form:"photoDataUri" label:"Image" validate:"required,datauri"`
}

// DiseaseDetectionOutput is the diagnosis of the photo.
type DiseaseDetectionOutput struct {
	Disease            string `json:"disease" description:"The detected disease or deficiency, or that the plant is healthy."`
	Explanation        string `json:"explanation" description:"Symptoms and potential causes."`
	RecommendedActions string `json:"recommendedActions" description:"Actions the farmer can take."`
	Severity           string `json:"severity" description:"Low, Medium or High."`
}

// EncyclopediaInput names a pest or disease.
type EncyclopediaInput struct {
	Query string `form:"query" label:"Search term" validate:"required,min=2"`
}

// EncyclopediaText is the textual part of an encyclopedia entry.
type EncyclopediaText struct {
	Name        string `json:"name" description:"The common name of the pest or disease."`
	Description string `json:"description" description:"A detailed description."`
	Symptoms    string `json:"symptoms" description:"Common symptoms as bullet points."`
	Treatment   string `json:"treatment" description:"Treatment and prevention methods as bullet points."`
}

// EncyclopediaOutput is a full encyclopedia entry.
type EncyclopediaOutput struct {
	EncyclopediaText
	ImageURL string `json:"imageUrl"`
}

// CommunityFeedInput is a location and an optional new post from the user.
type CommunityFeedInput struct {
	Location    string `form:"location" label:"Location" validate:"required,min=3" msg:"Location is required and must be at least 3 characters."`
	PostContent string `form:"postContent,omitempty" label:"Post"`
}

// Reply is an answer to a community post.
type Reply struct {
	ID        int    `json:"id" description:"A unique ID for the reply."`
	Author    string `json:"author" description:"A plausible, anonymous author name."`
	Avatar    string `json:"avatar" description:"A single emoji representing the user."`
	Content   string `json:"content" description:"The text of the reply."`
	Timestamp string `json:"timestamp" description:"A relative timestamp."`
}

// Post is a simulated community forum post.
type Post struct {
	ID        int     `json:"id" description:"A unique ID for the post."`
	Author    string  `json:"author" description:"A plausible, anonymous author name, or \"You\" for the user's own post."`
	Avatar    string  `json:"avatar" description:"A single emoji representing the user."`
	Content   string  `json:"content" description:"The text of the post."`
	Timestamp string  `json:"timestamp" description:"A relative timestamp such as \"2 hours ago\"."`
	Likes     int     `json:"likes" description:"Number of likes." validate:"gte=0"`
	Replies   []Reply `json:"replies" description:"Replies to the post."`
}

// CommunityFeedOutput is a simulated forum feed.
type CommunityFeedOutput struct {
	Posts []Post `json:"posts" description:"Community forum posts, most recent first." validate:"dive"`
}

// CommunityInsightsInput is the location to summarise.
type CommunityInsightsInput struct {
	Location string `form:"location" label:"Location" validate:"required,min=3" msg:"Location is required and must be at least 3 characters."`
}

// CommonCrop is a crop commonly grown in the area.
type CommonCrop struct {
	Name  string `json:"name" description:"The crop name."`
	Notes string `json:"notes" description:"Brief notes about the crop in the region."`
}

// CommonDisease is a disease prevalent in the area.
type CommonDisease struct {
	Name       string `json:"name" description:"The disease name."`
	Crop       string `json:"crop" description:"The primary crop it affects."`
	Prevalence string `json:"prevalence" description:"How common it is, e.g. \"High\"."`
}

// MarketTrend is a local price or demand trend.
type MarketTrend struct {
	Crop   string `json:"crop" description:"The crop name."`
	Trend  string `json:"trend" description:"The trend, e.g. \"Price increasing\"."`
	Reason string `json:"reason" description:"A brief reason for the trend."`
}

// EffectiveTreatment is a treatment reported to work locally.
type EffectiveTreatment struct {
	Disease       string `json:"disease" description:"The disease name."`
	Treatment     string `json:"treatment" description:"The treatment method."`
	Effectiveness string `json:"effectiveness" description:"How effective it is reported to be."`
}

// CommunityInsightsOutput summarises community-sourced data for a location.
type CommunityInsightsOutput struct {
	CommonCrops         []CommonCrop         `json:"commonCrops"`
	CommonDiseases      []CommonDisease      `json:"commonDiseases"`
	MarketTrends        []MarketTrend        `json:"marketTrends"`
	EffectiveTreatments []EffectiveTreatment `json:"effectiveTreatments"`
}

// WeatherPlanInput is a crop and where it is grown.
type WeatherPlanInput struct {
	Crop     string `form:"crop" label:"Crop" validate:"required,min=2"`
	Location string `form:"location" label:"Location" validate:"required,min=2"`
}

// PlanSection is one titled part of a weather plan.
type PlanSection struct {
	Title string `json:"title"`
	Plan  string `json:"plan"`
}

// WeatherPlanOutput is a weather-resilient farming plan.
type WeatherPlanOutput struct {
	Irrigation  PlanSection `json:"irrigation" description:"Heatwave-safe irrigation."`
	Fertilizer  PlanSection `json:"fertilizer" description:"Rain-avoidance fertilizer schedule."`
	PestControl PlanSection `json:"pestControl" description:"Pest-risk based schedule."`
	Harvesting  PlanSection `json:"harvesting" description:"Harvest timing based on humidity."`
}
