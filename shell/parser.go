// Copyright 2026, Square, Inc.

// Package shell implements the interactive console: a small command language
// with Unix-style pipes, so the output of one command can feed the next
// ("plan | build").
package shell

import (
	"fmt"
	"strings"
)

// Command is one parsed command in a pipeline.
type Command struct {
	Name   string
	Args   []string
	Kwargs map[string]string
}

// ParseLine parses one input line into a pipeline of commands. Pipes and
// spaces inside single or double quotes are literal. An empty line parses to
// an empty pipeline.
func ParseLine(line string) ([]Command, error) {
	segments, err := splitPipes(line)
	if err != nil {
		return nil, err
	}

	pipeline := []Command{}
	for _, segment := range segments {
		tokens, err := tokenize(segment)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("empty command in pipeline")
		}

		cmd := Command{
			Name:   tokens[0],
			Args:   []string{},
			Kwargs: map[string]string{},
		}
		for _, token := range tokens[1:] {
			if i := strings.Index(token, "="); i > 0 {
				cmd.Kwargs[token[:i]] = token[i+1:]
			} else {
				cmd.Args = append(cmd.Args, token)
			}
		}
		pipeline = append(pipeline, cmd)
	}
	return pipeline, nil
}

// splitPipes splits a line on | characters outside quotes.
func splitPipes(line string) ([]string, error) {
	segments := []string{}
	var current strings.Builder
	var quote rune

	for _, r := range line {
		switch {
		case quote != 0:
			current.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			current.WriteRune(r)
		case r == '|':
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote")
	}

	last := current.String()
	if len(segments) > 0 || strings.TrimSpace(last) != "" {
		segments = append(segments, last)
	}
	return segments, nil
}

// tokenize splits a command segment into whitespace-separated tokens,
// stripping the quotes off quoted tokens.
func tokenize(segment string) ([]string, error) {
	tokens := []string{}
	var current strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for _, r := range segment {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote")
	}
	flush()
	return tokens, nil
}
