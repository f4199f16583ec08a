package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/support.txt
	supportRaw string
)

// TimeLayout formats the {time} variable in the system prompts.
const TimeLayout = "2006-01-02 15:04:05"

// PromptSet holds the agents' system prompt templates.
type PromptSet struct {
	Sales   string
	Support string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Sales:   strings.TrimSpace(salesRaw),
		Support: strings.TrimSpace(supportRaw),
	}
}
