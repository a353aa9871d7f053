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

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type soilInput struct {
	Location string   `form:"location" label:"Location" validate:"required,min=3"`
	SoilPH   float64  `form:"soilPH" label:"Soil pH" validate:"gte=0,lte=14" msg:"Soil pH must be between 0 and 14."`
	LandSize float64  `form:"landSize" label:"Land size" validate:"gte=0.1" msg:"Land size must be positive."`
	Plots    int      `form:"plots,omitempty" label:"Plots" validate:"gte=0"`
	Language string   `form:"language" label:"Language" default:"en" validate:"oneof=en te hi"`
	Note     string   `form:"note,omitempty" label:"Note"`
	Crops    []string `form:"crops,omitempty" label:"Crops" validate:"dive,oneof=wheat rice maize"`
	Organic  bool     `form:"organic,omitempty" label:"Organic"`
	internal string
}

func validSoilForm() map[string]string {
	return map[string]string{
		"location": "Warangal",
		"soilPH":   "6.5",
		"landSize": "2",
	}
}

func TestDecodeValid(t *testing.T) {
	form := validSoilForm()
	form["crops"] = "wheat, rice,"
	form["organic"] = "on"
	form["note"] = "  sandy loam  "

	var in soilInput
	require.NoError(t, Decode(form, &in))

	assert.Equal(t, "Warangal", in.Location)
	assert.Equal(t, 6.5, in.SoilPH)
	assert.Equal(t, 2.0, in.LandSize)
	assert.Equal(t, "en", in.Language, "default applies when absent")
	assert.Equal(t, "sandy loam", in.Note)
	assert.Equal(t, []string{"wheat", "rice"}, in.Crops)
	assert.True(t, in.Organic)
	assert.Zero(t, in.Plots)
}

func TestDecodeSoilPHBoundaries(t *testing.T) {
	tests := []struct {
		ph    string
		valid bool
	}{
		{"0", true},
		{"14", true},
		{"7.2", true},
		{"14.01", false},
		{"-0.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.ph, func(t *testing.T) {
			form := validSoilForm()
			form["soilPH"] = tt.ph

			var in soilInput
			err := Decode(form, &in)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "Soil pH must be between 0 and 14.", verr.Message)
			assert.Equal(t, "Soil pH must be between 0 and 14.", verr.FieldMap()["soilPH"])
		})
	}
}

func TestDecodeReportsFieldsInDeclarationOrder(t *testing.T) {
	form := map[string]string{
		"landSize": "0",
		"soilPH":   "abc",
		"language": "fr",
	}

	var in soilInput
	err := Decode(form, &in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Location is required.", verr.Message)
	assert.Equal(t, []FieldError{
		{Field: "location", Message: "Location is required."},
		{Field: "soilPH", Message: "Soil pH must be a number."},
		{Field: "landSize", Message: "Land size must be positive."},
		{Field: "language", Message: "Language must be one of: en, te, hi."},
	}, verr.Fields)
}

func TestDecodeBlankCountsAsAbsent(t *testing.T) {
	form := validSoilForm()
	form["location"] = "   "

	var in soilInput
	err := Decode(form, &in)
	require.Error(t, err)
	assert.Equal(t, "Location is required.", err.Error())
}

func TestDecodeRejectsNonFiniteNumbers(t *testing.T) {
	for _, value := range []string{"NaN", "Inf", "-Inf", "1e999"} {
		form := validSoilForm()
		form["landSize"] = value

		var in soilInput
		err := Decode(form, &in)
		require.Error(t, err, value)
		assert.Equal(t, "Land size must be a number.", err.Error(), value)
	}
}

func TestDecodeMinLengthAndListEnum(t *testing.T) {
	form := validSoilForm()
	form["location"] = "AP"
	form["crops"] = "wheat,cotton"

	var in soilInput
	err := Decode(form, &in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Location must be at least 3 characters.", verr.FieldMap()["location"])
	assert.Equal(t, "Crops must be one of: wheat, rice, maize.", verr.FieldMap()["crops"])
}

func TestDecodeIsIdempotent(t *testing.T) {
	forms := []map[string]string{
		validSoilForm(),
		{"soilPH": "15"},
		{},
	}

	for _, form := range forms {
		var first, second soilInput
		err1 := Decode(form, &first)
		err2 := Decode(form, &second)

		assert.Equal(t, err1, err2)
		assert.Equal(t, first, second)
	}
}

func TestDecodeNeedsStructPointer(t *testing.T) {
	var in soilInput
	err := Decode(validSoilForm(), in)
	require.Error(t, err)

	var verr *ValidationError
	assert.NotErrorAs(t, err, &verr)
}

func TestCheckTypedRecord(t *testing.T) {
	assert.NoError(t, Check(soilInput{Location: "Guntur", SoilPH: 7, LandSize: 1, Language: "te"}))

	err := Check(&soilInput{Location: "", SoilPH: 15, LandSize: 1, Language: "en"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Location is required.", verr.Message)
	assert.Len(t, verr.Fields, 2)
}

func TestFields(t *testing.T) {
	fields := Fields(soilInput{})
	require.Len(t, fields, 8)

	assert.Equal(t, Field{Name: "location", Label: "Location", Type: "string", Required: true}, fields[0])
	assert.Equal(t, "number", fields[1].Type)
	assert.Equal(t, Field{Name: "plots", Label: "Plots", Type: "integer"}, fields[3])
	assert.Equal(t, Field{Name: "language", Label: "Language", Type: "string", Default: "en", Options: []string{"en", "te", "hi"}}, fields[4])
	assert.Equal(t, "list", fields[6].Type)
	assert.Equal(t, "boolean", fields[7].Type)
}
