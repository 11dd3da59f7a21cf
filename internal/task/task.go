package task

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which documentation artifact is produced.
type Kind string

const (
	KindArchitecture   Kind = "architecture"
	KindUserStories    Kind = "user-stories"
	KindCustomAnalysis Kind = "custom-analysis"
	KindCodeStory      Kind = "code-story"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindArchitecture, KindUserStories, KindCustomAnalysis, KindCodeStory}

// Complexity is the detail level of a code story.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityDetailed Complexity = "detailed"
)

var (
	ErrUnknownKind        = errors.New("unknown task kind")
	ErrMissingInstruction = errors.New("custom analysis requires an instruction")
	ErrInvalidComplexity  = errors.New("invalid code story complexity")
)

// Params carries the kind-specific inputs. Instruction is used by
// custom-analysis, Complexity by code-story.
type Params struct {
	Instruction string     `json:"instruction,omitempty"`
	Complexity  Complexity `json:"complexity,omitempty"`
}

// Position frames a chunk within a batch.
type Position struct {
	Index int // zero-based
	Total int
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindArchitecture, KindUserStories, KindCustomAnalysis, KindCodeStory:
		return k, nil
	case "architectural-doc", "architecture-doc":
		return KindArchitecture, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func ParseComplexity(s string) (Complexity, error) {
	switch c := Complexity(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ComplexityModerate, nil
	case ComplexitySimple, ComplexityModerate, ComplexityDetailed:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidComplexity, s)
}

// Normalize validates params for the given kind and fills defaults.
func (p Params) Normalize(kind Kind) (Params, error) {
	switch kind {
	case KindArchitecture, KindUserStories:
		return Params{}, nil
	case KindCustomAnalysis:
		if strings.TrimSpace(p.Instruction) == "" {
			return p, ErrMissingInstruction
		}
		return Params{Instruction: p.Instruction}, nil
	case KindCodeStory:
		c, err := ParseComplexity(string(p.Complexity))
		if err != nil {
			return p, err
		}
		return Params{Complexity: c}, nil
	}
	return p, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Label is the human name of the artifact, used in logs and errors.
func (k Kind) Label() string {
	switch k {
	case KindArchitecture:
		return "architectural documentation"
	case KindUserStories:
		return "user stories"
	case KindCustomAnalysis:
		return "custom analysis"
	case KindCodeStory:
		return "code story"
	}
	return string(k)
}
