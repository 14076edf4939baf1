package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// WaitForHumanHandler pauses the run until an Interviewer answers.
// Choices come from the labels of the node's outgoing edges; the
// selected label and target feed back into edge selection through
// PreferredLabel and SuggestedNextIDs, so the engine routes where the
// human pointed. A nil Interviewer auto-approves.
type WaitForHumanHandler struct {
	Interviewer Interviewer
}

// Execute implements dotflow.Handler.
func (h *WaitForHumanHandler) Execute(ctx context.Context, node *dotflow.Node, _ *dotflow.Context, g *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
	type choice struct {
		option   Option
		targetID string
	}
	var choices []choice
	for _, edge := range g.Outgoing(node.ID) {
		raw := strings.TrimSpace(edge.Label())
		if raw == "" {
			continue
		}
		choices = append(choices, choice{option: ParseAcceleratorKey(raw), targetID: edge.To})
	}

	options := make([]Option, len(choices))
	for i, c := range choices {
		options[i] = c.option
	}

	question := Question{
		Stage:   node.ID,
		Text:    questionText(node),
		Type:    questionType(options),
		Options: options,
	}

	interviewer := h.Interviewer
	if interviewer == nil {
		interviewer = &AutoApproveInterviewer{}
	}
	answer, err := interviewer.Ask(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("wait.human %q: %w", node.ID, err)
	}

	selectedKey := answer.Value
	selectedLabel := answer.Text
	if answer.SelectedOption != nil {
		selectedKey = answer.SelectedOption.Key
		selectedLabel = answer.SelectedOption.Label
	}

	var nextIDs []string
	for _, c := range choices {
		if strings.EqualFold(c.option.Key, selectedKey) {
			nextIDs = append(nextIDs, c.targetID)
		}
	}

	return dotflow.Success().
		WithPreferredLabel(selectedLabel).
		WithSuggestedNextIDs(nextIDs...).
		WithNotes(fmt.Sprintf("human selected: %s", selectedLabel)).
		WithContextUpdate("human.gate.selected", selectedKey).
		WithContextUpdate("human.gate.label", selectedLabel), nil
}

// questionText prefers the node label, then its prompt, then the id.
func questionText(node *dotflow.Node) string {
	if label := node.Label(); label != "" {
		return label
	}
	if prompt := node.Prompt(); prompt != "" {
		return prompt
	}
	return node.ID
}

// questionType classifies the gate: two or fewer options that are all
// yes/no keys make a yes/no question, no options make free text,
// anything else is multiple choice.
func questionType(options []Option) QuestionType {
	if len(options) == 0 {
		return QuestionFreeText
	}
	if len(options) <= 2 {
		allYesNo := true
		for _, opt := range options {
			switch strings.ToLower(opt.Key) {
			case "y", "n", "yes", "no":
			default:
				allYesNo = false
			}
		}
		if allYesNo {
			return QuestionYesNo
		}
	}
	return QuestionMultipleChoice
}
