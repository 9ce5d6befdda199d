// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cpack rewrites the component list of a generated CPackConfig.cmake.
//
// CMake accepts hyphens in install component names but several CPack
// generators do not. Before packaging, the set(CPACK_COMPONENTS_ALL ...)
// command is located by parsing the file's command syntax, and hyphens in
// its value arguments are replaced with underscores. Every other byte of the
// file is preserved, including comments and the rest of the command.
package cpack

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ConfigFileName is the file CMake generates in the build directory.
const ConfigFileName = "CPackConfig.cmake"

// ComponentsVariable names the variable holding the component list.
const ComponentsVariable = "CPACK_COMPONENTS_ALL"

// ErrSyntax is returned for input with an unterminated command or string.
var ErrSyntax = errors.New("cpack config syntax error")

// Result reports what Rewrite did.
type Result struct {
	// Found is true when a set(CPACK_COMPONENTS_ALL ...) command exists.
	Found bool

	// Changed is true when at least one hyphen was replaced.
	Changed bool

	// Components is the component list after rewriting, in file order.
	Components []string
}

// NormalizeComponent returns name with hyphens replaced by underscores.
func NormalizeComponent(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Rewrite normalizes the component list of the CPack config at path in place.
// The file is written only when something changed.
func Rewrite(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	out, res, err := RewriteComponents(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	if !res.Changed {
		return res, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	return res, nil
}

// RewriteComponents applies the rewrite to src and returns a new buffer.
// Every set(CPACK_COMPONENTS_ALL ...) command in src is rewritten; the last
// one determines Result.Components, matching CMake's evaluation order.
func RewriteComponents(src []byte) ([]byte, Result, error) {
	out := append([]byte(nil), src...)
	cmds, err := scanCommands(src)
	if err != nil {
		return nil, Result{}, err
	}

	var res Result
	for _, cmd := range cmds {
		if !strings.EqualFold(cmd.name, "set") || len(cmd.args) == 0 {
			continue
		}
		if cmd.args[0].text(src) != ComponentsVariable {
			continue
		}
		res.Found = true
		res.Components = res.Components[:0]
		for _, a := range cmd.args[1:] {
			if !a.quoted && (a.text(src) == "CACHE" || a.text(src) == "PARENT_SCOPE") {
				break
			}
			for i := a.start; i < a.end; i++ {
				if out[i] == '-' {
					out[i] = '_'
					res.Changed = true
				}
			}
			for _, c := range strings.Split(string(out[a.start:a.end]), ";") {
				if c != "" {
					res.Components = append(res.Components, c)
				}
			}
		}
	}
	return out, res, nil
}

// =============================================================================
// Command Scanner
// =============================================================================

// command is one CMake command invocation: name(args...).
type command struct {
	name string
	args []argument
}

// argument spans the content of one argument. For quoted arguments the span
// excludes the quotes.
type argument struct {
	start, end int
	quoted     bool
}

func (a argument) text(src []byte) string {
	return string(src[a.start:a.end])
}

// scanCommands tokenizes src into command invocations. It understands line
// comments, bracket comments, quoted arguments with escapes and nested
// parentheses in unquoted arguments, which covers what CMake generates.
func scanCommands(src []byte) ([]command, error) {
	var cmds []command
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '#':
			i = skipComment(src, i)
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			name := string(src[start:i])
			j := i
			for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
				j++
			}
			if j >= len(src) || src[j] != '(' {
				continue
			}
			args, next, err := scanArgs(src, j+1)
			if err != nil {
				return nil, fmt.Errorf("%w: command %s at offset %d: %v", ErrSyntax, name, start, err)
			}
			cmds = append(cmds, command{name: name, args: args})
			i = next
		default:
			i++
		}
	}
	return cmds, nil
}

// scanArgs reads arguments from just after '(' to the matching ')'.
// It returns the offset after ')'.
func scanArgs(src []byte, i int) ([]argument, int, error) {
	var args []argument
	for i < len(src) {
		c := src[i]
		switch {
		case c == ')':
			return args, i + 1, nil
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '#':
			i = skipComment(src, i)
		case c == '"':
			end, err := skipQuoted(src, i)
			if err != nil {
				return nil, 0, err
			}
			args = append(args, argument{start: i + 1, end: end - 1, quoted: true})
			i = end
		default:
			start := i
			depth := 0
			for i < len(src) {
				c := src[i]
				if c == '\\' && i+1 < len(src) {
					i += 2
					continue
				}
				if c == '(' {
					depth++
				} else if c == ')' {
					if depth == 0 {
						break
					}
					depth--
				} else if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '"' || c == '#' {
					break
				}
				i++
			}
			args = append(args, argument{start: start, end: i})
		}
	}
	return nil, 0, errors.New("missing closing parenthesis")
}

// skipQuoted returns the offset after the closing quote of the string at i.
func skipQuoted(src []byte, i int) (int, error) {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '"':
			return j + 1, nil
		}
	}
	return 0, errors.New("unterminated quoted argument")
}

// skipComment returns the offset after the comment starting at i.
func skipComment(src []byte, i int) int {
	if rest := src[i+1:]; len(rest) > 0 && rest[0] == '[' {
		if n := bracketLevel(rest); n >= 0 {
			closer := "]" + strings.Repeat("=", n) + "]"
			if k := strings.Index(string(rest), closer); k >= 0 {
				return i + 1 + k + len(closer)
			}
			return len(src)
		}
	}
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

// bracketLevel returns n for an opening "[" + n*"=" + "[", or -1.
func bracketLevel(b []byte) int {
	n := 0
	for k := 1; k < len(b); k++ {
		switch b[k] {
		case '=':
			n++
		case '[':
			return n
		default:
			return -1
		}
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
