// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withTerminal(t *testing.T, isTTY bool) {
	t.Helper()
	orig, origP := terminalCheck, GetPersonality()
	terminalCheck = func() bool { return isTTY }
	t.Cleanup(func() {
		terminalCheck = orig
		SetPersonality(origP)
	})
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"F", PersonalityFull},
		{"std", PersonalityStandard},
		{"min", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{" ci ", PersonalityMachine},
		{"nautical", PersonalityStandard},
		{"", PersonalityStandard},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePersonalityLevel(tt.in))
		})
	}
}

func TestInitPersonality_FlagWins(t *testing.T) {
	withTerminal(t, false)
	t.Setenv(PersonalityEnv, "full")

	InitPersonality("minimal")

	assert.Equal(t, PersonalityMinimal, GetPersonality().Level)
}

func TestInitPersonality_Env(t *testing.T) {
	withTerminal(t, false)
	t.Setenv(PersonalityEnv, "standard")

	InitPersonality("")

	assert.Equal(t, PersonalityStandard, GetPersonality().Level)
}

func TestInitPersonality_NonTerminalIsMachine(t *testing.T) {
	withTerminal(t, false)
	t.Setenv(PersonalityEnv, "")

	InitPersonality("")

	assert.Equal(t, PersonalityMachine, GetPersonality().Level)
	assert.False(t, IsInteractive())
	assert.False(t, ShouldShowProgress())
}

func TestInitPersonality_TerminalIsFull(t *testing.T) {
	withTerminal(t, true)
	t.Setenv(PersonalityEnv, "")

	InitPersonality("")

	assert.Equal(t, PersonalityFull, GetPersonality().Level)
	assert.True(t, IsInteractive())
	assert.True(t, ShouldShowProgress())
}

func TestSetPersonalityLevel_KeepsHints(t *testing.T) {
	withTerminal(t, true)
	SetPersonality(Personality{Level: PersonalityFull, ShowHints: false})

	SetPersonalityLevel(PersonalityMinimal)

	p := GetPersonality()
	assert.Equal(t, PersonalityMinimal, p.Level)
	assert.False(t, p.ShowHints)
	assert.False(t, ShouldShowProgress())
}
