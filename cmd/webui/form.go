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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/resilience"
)

const (
	photoField     = "photo"
	photoURIField  = "photoDataUri"
	languageField  = "language"
	languageCookie = "lang"
	prevStateField = "prevState"
)

// readForm flattens the request body into form fields. Repeated fields are
// joined with commas, and an uploaded photo becomes a data URI.
func (s *WebUIServer) readForm(c *gin.Context) (map[string]string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	switch c.ContentType() {
	case gin.MIMEJSON:
		return readJSONForm(c.Request.Body)
	case gin.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(s.maxUploadBytes); err != nil {
			return nil, uploadError(err)
		}
	default:
		if err := c.Request.ParseForm(); err != nil {
			return nil, uploadError(err)
		}
	}

	form := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		form[key] = strings.Join(values, ",")
	}

	if mf := c.Request.MultipartForm; mf != nil {
		if files := mf.File[photoField]; len(files) > 0 {
			uri, err := fileDataURI(files[0])
			if err != nil {
				return nil, err
			}
			if uri != "" {
				form[photoURIField] = uri
			}
		}
	}
	return form, nil
}

func readJSONForm(body io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, uploadError(err)
	}

	form := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			form[key] = v
		case json.Number:
			form[key] = v.String()
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			form[key] = strings.Join(parts, ",")
		case map[string]any:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, uploadError(err)
			}
			form[key] = string(encoded)
		default:
			form[key] = fmt.Sprint(v)
		}
	}
	return form, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return resilience.NewServiceError(
			fmt.Sprintf("The upload exceeds the %d MB limit.", tooLarge.Limit>>20),
			resilience.ErrorCodeValidationFailed, http.StatusRequestEntityTooLarge, err)
	}
	return resilience.NewValidationError("The form could not be read.", nil, err)
}

// fileDataURI encodes an uploaded file as a base64 data URI, sniffing the
// content type when the client sent none.
func fileDataURI(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", uploadError(err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", uploadError(err)
	}
	if len(data) == 0 {
		return "", nil
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// resolveLanguage picks the answer language: the form value, then the lang
// cookie, then the primary Accept-Language tag, then English.
func resolveLanguage(c *gin.Context, form map[string]string) string {
	if lang := form[languageField]; lang != "" {
		return lang
	}
	if cookie, err := c.Cookie(languageCookie); err == nil && supportedLanguage(cookie) {
		return cookie
	}
	if header := c.GetHeader("Accept-Language"); header != "" {
		primary := strings.SplitN(header, ",", 2)[0]
		primary = strings.SplitN(primary, ";", 2)[0]
		primary = strings.ToLower(strings.TrimSpace(strings.SplitN(primary, "-", 2)[0]))
		if supportedLanguage(primary) {
			return primary
		}
	}
	return string(advisory.LanguageEnglish)
}

func supportedLanguage(lang string) bool {
	return slices.Contains(advisory.Languages, advisory.Language(lang))
}
