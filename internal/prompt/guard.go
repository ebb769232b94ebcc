// Package prompt screens user questions before they are placed in a model prompt.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// InjectionType represents different kinds of prompt injection
type InjectionType string

const (
	InjectionTypeSystemPromptLeak    InjectionType = "system_prompt_leak"
	InjectionTypeRoleManipulation    InjectionType = "role_manipulation"
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeJailbreak           InjectionType = "jailbreak"
	InjectionTypeDelimiterAttack     InjectionType = "delimiter_attack"
)

// Detection is one matched pattern
type Detection struct {
	Type       InjectionType
	Confidence float64
	StartPos   int
	EndPos     int
}

type rule struct {
	kind       InjectionType
	confidence float64
	patterns   []*regexp.Regexp
}

var rules = []rule{
	{
		kind:       InjectionTypeSystemPromptLeak,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(previous|all|above|prior)\s+(instructions?|prompts?|commands?)`),
			regexp.MustCompile(`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|initial|hidden)\s+(prompt|instructions?)`),
			regexp.MustCompile(`(?i)what\s+(is|are|was|were)\s+(your|the)\s+(system|original|initial)\s+(prompt|instructions?)`),
		},
	},
	{
		kind:       InjectionTypeRoleManipulation,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)assume\s+(the\s+)?(role|identity)\s+of`),
			regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+(a|an)\b`),
			regexp.MustCompile(`(?i)from\s+now\s+on[,]?\s+(you|your)\s+(are|will)`),
			regexp.MustCompile(`(?i)new\s+(instructions?|personality)`),
		},
	},
	{
		kind:       InjectionTypeInstructionOverride,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)disregard\s+(all|previous|above|any)\s+(instructions?|rules|commands?)`),
			regexp.MustCompile(`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`),
			regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous|your\s+instructions)`),
		},
	},
	{
		kind:       InjectionTypeJailbreak,
		confidence: 0.95,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bDAN\s+mode`),
			regexp.MustCompile(`(?i)developer\s+mode`),
			regexp.MustCompile(`(?i)jailbreak`),
			regexp.MustCompile(`(?i)without\s+(any|ethical|moral)\s+(restrictions?|limitations?|guidelines?)`),
		},
	},
	{
		kind:       InjectionTypeDelimiterAttack,
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\[/?SYSTEM\]|\[/?ASSISTANT\])`),
			regexp.MustCompile(`(<\|system\|>|<\|assistant\|>|<\|end\|>)`),
			regexp.MustCompile(`(?i)###\s*(SYSTEM|ASSISTANT|INSTRUCTION)`),
		},
	},
}

// DefaultThreshold is the confidence at which a detection blocks a question
const DefaultThreshold = 0.8

// Guard rejects questions that try to steer the model away from its task
type Guard struct {
	threshold float64
}

// NewGuard creates a guard. A non-positive threshold uses DefaultThreshold.
func NewGuard(threshold float64) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Guard{threshold: threshold}
}

// Check returns an error naming the strongest detection at or above the threshold
func (g *Guard) Check(question string) error {
	detections := Detect(question)
	if len(detections) == 0 {
		return nil
	}
	top := detections[0]
	if top.Confidence < g.threshold {
		return nil
	}
	return fmt.Errorf("potential prompt injection detected: %s (confidence: %.2f)", top.Type, top.Confidence)
}

// Detect returns every match, strongest first
func Detect(question string) []Detection {
	var detections []Detection
	for _, r := range rules {
		for _, pattern := range r.patterns {
			for _, match := range pattern.FindAllStringIndex(question, -1) {
				detections = append(detections, Detection{
					Type:       r.kind,
					Confidence: r.confidence,
					StartPos:   match[0],
					EndPos:     match[1],
				})
			}
		}
	}
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections
}

// Neutralize removes prompt delimiters a question could use to fake a new
// message turn, and collapses whitespace
func Neutralize(question string) string {
	for _, pattern := range rules[len(rules)-1].patterns {
		question = pattern.ReplaceAllString(question, " ")
	}
	return strings.Join(strings.Fields(question), " ")
}
