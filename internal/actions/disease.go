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
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/resilience"
	"github.com/your-org/agrigenius/internal/schema"
)

// DiseaseDetectionState is the combined state of the photo diagnosis form and
// the damage-cost estimate that follows it.
type DiseaseDetectionState struct {
	Status       Status                           `json:"status"`
	PhotoDataURI string                           `json:"photoDataUri,omitempty"`
	Result       *advisory.DiseaseDetectionOutput `json:"result,omitempty"`
	Error        string                           `json:"error,omitempty"`
	FieldErrors  map[string]string                `json:"fieldErrors,omitempty"`

	DamageCostStatus      Status                     `json:"damageCostStatus,omitempty"`
	DamageCostForm        map[string]string          `json:"damageCostForm,omitempty"`
	DamageCostResult      *advisory.DamageCostOutput `json:"damageCostResult,omitempty"`
	DamageCostError       string                     `json:"damageCostError,omitempty"`
	DamageCostFieldErrors map[string]string          `json:"damageCostFieldErrors,omitempty"`
}

// DiseaseDetection chains photo diagnosis and damage-cost estimation.
type DiseaseDetection struct {
	detect *Action[advisory.DiseaseDetectionInput, advisory.DiseaseDetectionOutput]
	damage *Action[advisory.DamageCostInput, advisory.DamageCostOutput]
}

// Detect diagnoses a photo. Any earlier damage-cost result belongs to the old
// photo and is discarded. A photo that passed validation is kept even when
// the diagnosis fails, so the farmer can retry without uploading again.
func (d *DiseaseDetection) Detect(ctx context.Context, _ DiseaseDetectionState, form map[string]string) DiseaseDetectionState {
	s := d.detect.Submit(ctx, Idle[advisory.DiseaseDetectionOutput](), form)

	next := DiseaseDetectionState{
		Status:      s.Status,
		Result:      s.Result,
		Error:       s.Error,
		FieldErrors: s.FieldErrors,
	}
	if s.Status != StatusValidationError {
		next.PhotoDataURI = s.Form["photoDataUri"]
	}
	return next
}

// DamageCost estimates losses for the diagnosed disease, keeping the
// diagnosis fields of prev intact.
func (d *DiseaseDetection) DamageCost(ctx context.Context, prev DiseaseDetectionState, form map[string]string) DiseaseDetectionState {
	s := d.damage.Submit(ctx, State[advisory.DamageCostOutput]{Form: prev.DamageCostForm}, form)

	next := prev
	next.DamageCostStatus = s.Status
	next.DamageCostForm = s.Form
	next.DamageCostResult = s.Result
	next.DamageCostError = s.Error
	next.DamageCostFieldErrors = s.FieldErrors
	return next
}

// AveragesResult is the reply of the regional-averages lookup: exactly one of
// Data and Error is set.
type AveragesResult struct {
	Data  *advisory.RegionalAveragesOutput `json:"data,omitempty"`
	Error string                           `json:"error,omitempty"`
}

// Averages looks up typical values used to prefill the profit predictor.
type Averages struct {
	invoker flow.Invoker[advisory.RegionalAveragesInput, advisory.RegionalAveragesOutput]
	errors  *resilience.ErrorHandler
}

const (
	averagesMissingInput = "Location and Crop Type are required."
	averagesFallback     = "An unexpected error occurred while fetching averages."
)

// Fetch returns suggested values for the requested fields.
func (a *Averages) Fetch(ctx context.Context, form map[string]string) AveragesResult {
	if strings.TrimSpace(form["location"]) == "" || strings.TrimSpace(form["cropType"]) == "" {
		return AveragesResult{Error: averagesMissingInput}
	}

	var in advisory.RegionalAveragesInput
	if err := schema.Decode(form, &in); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			return AveragesResult{Error: verr.Message}
		}
		return AveragesResult{Error: averagesFallback}
	}

	out, err := a.invoker.Invoke(ctx, in)
	if err != nil {
		a.errors.LogError(err, "fetching averages", zap.String("crop", in.CropType))
		return AveragesResult{Error: a.errors.UserMessage(err, averagesFallback)}
	}
	return AveragesResult{Data: out}
}
