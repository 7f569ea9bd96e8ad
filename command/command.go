package command

import (
	"fmt"
	"strings"
)

type Class uint8

const (
	Malformed Class = iota
	Unknown
	Known
)

func (c Class) String() string {
	switch c {
	case Known:
		return "known"
	case Unknown:
		return "unknown"
	default:
		return "malformed"
	}
}

type Kind uint8

const (
	None Kind = iota
	SetFreq
	GetStatus
)

// Keyword returns the wire keyword of the command kind.
func (k Kind) Keyword() string {
	switch k {
	case SetFreq:
		return "SET_FREQ"
	case GetStatus:
		return "GET_STATUS"
	default:
		return ""
	}
}

func (k Kind) String() string {
	if s := k.Keyword(); s != "" {
		return s
	}
	return "NONE"
}

var kinds = []Kind{SetFreq, GetStatus}

type Result struct {
	Class    Class
	Kind     Kind
	Argument string
}

// Matching selects how keywords are recognised.
type Matching string

const (
	// MatchToken requires the keyword to be the whole text or to be followed by ':' or a space.
	MatchToken Matching = "token"
	// MatchPrefix accepts any text starting with a keyword, e.g. SET_FREQUENCY validates as SET_FREQ.
	MatchPrefix Matching = "prefix"
)

func ParseMatching(s string) (Matching, error) {
	switch Matching(s) {
	case "", MatchToken:
		return MatchToken, nil
	case MatchPrefix:
		return MatchPrefix, nil
	default:
		return "", fmt.Errorf("invalid command matching: %q", s)
	}
}

// A Validator classifies decoded text frames. It holds no state besides its matching mode.
type Validator struct {
	matching Matching
}

func NewValidator(matching Matching) Validator {
	if matching == "" {
		matching = MatchToken
	}
	return Validator{matching: matching}
}

func (v Validator) Validate(text string) Result {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return Result{Class: Malformed}
	}

	for _, kind := range kinds {
		keyword := kind.Keyword()
		if !strings.HasPrefix(text, keyword) {
			continue
		}

		rest := text[len(keyword):]
		if v.matching == MatchPrefix {
			return Result{Class: Known, Kind: kind, Argument: argument(rest)}
		}

		if rest == "" {
			return Result{Class: Known, Kind: kind}
		}
		if rest[0] == ':' || rest[0] == ' ' {
			return Result{Class: Known, Kind: kind, Argument: strings.TrimSpace(rest[1:])}
		}
	}

	return Result{Class: Unknown}
}

func argument(rest string) string {
	if rest != "" && (rest[0] == ':' || rest[0] == ' ') {
		return strings.TrimSpace(rest[1:])
	}
	return ""
}
