// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package release

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
)

// TextData is the data available to the title, body and tag message
// templates.
type TextData struct {
	Product string
	Version string
	Tag     string
}

// Texts holds the parsed release text templates.
type Texts struct {
	title      *template.Template
	body       *template.Template
	tagMessage *template.Template
}

// ParseTexts parses the three templates. Errors match config.ErrConfiguration.
func ParseTexts(title, body, tagMessage string) (*Texts, error) {
	var t Texts
	var err error
	if t.title, err = parseText("release.title", title); err != nil {
		return nil, err
	}
	if t.body, err = parseText("release.body", body); err != nil {
		return nil, err
	}
	if t.tagMessage, err = parseText("release.tag_message", tagMessage); err != nil {
		return nil, err
	}
	return &t, nil
}

// Render returns title, body and tag message for d.
func (t *Texts) Render(d TextData) (title, body, tagMessage string, err error) {
	if title, err = execText(t.title, d); err != nil {
		return "", "", "", err
	}
	if body, err = execText(t.body, d); err != nil {
		return "", "", "", err
	}
	if tagMessage, err = execText(t.tagMessage, d); err != nil {
		return "", "", "", err
	}
	return title, body, tagMessage, nil
}

func parseText(field, text string) (*template.Template, error) {
	tmpl, err := template.New(field).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &config.Error{Field: field, Err: err}
	}
	return tmpl, nil
}

func execText(tmpl *template.Template, d TextData) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
