package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
	"github.com/randalmurphal/dotflow/pkg/dotflow/handlers"
)

const gateSrc = `digraph p {
	gate [shape=hexagon, label="Deploy to production?"];
	deploy [shape=box];
	rollback [shape=box];
	gate -> deploy [label="[Y] Yes"];
	gate -> rollback [label="[N] No"];
}`

// captureInterviewer records the question it was asked and replies with
// a canned answer.
type captureInterviewer struct {
	question handlers.Question
	answer   handlers.Answer
}

func (c *captureInterviewer) Ask(_ context.Context, q handlers.Question) (handlers.Answer, error) {
	c.question = q
	return c.answer, nil
}

func TestWaitForHumanHandler_RoutesSelectedEdge(t *testing.T) {
	g := mustGraph(t, gateSrc)
	node := mustNode(t, g, "gate")

	interv := &handlers.QueueInterviewer{Answers: []handlers.Answer{{Value: "n"}}}
	h := &handlers.WaitForHumanHandler{Interviewer: interv}

	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Equal(t, "No", out.PreferredLabel)
	assert.Equal(t, []string{"rollback"}, out.SuggestedNextIDs)
	assert.Equal(t, "N", out.ContextUpdates["human.gate.selected"])
	assert.Equal(t, "No", out.ContextUpdates["human.gate.label"])
}

func TestWaitForHumanHandler_NilInterviewerAutoApproves(t *testing.T) {
	g := mustGraph(t, gateSrc)
	node := mustNode(t, g, "gate")

	h := &handlers.WaitForHumanHandler{}
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "Yes", out.PreferredLabel)
	assert.Equal(t, []string{"deploy"}, out.SuggestedNextIDs)
}

func TestWaitForHumanHandler_BuildsQuestionFromEdges(t *testing.T) {
	g := mustGraph(t, gateSrc)
	node := mustNode(t, g, "gate")

	interv := &captureInterviewer{
		answer: handlers.Answer{
			Value:          "Y",
			Text:           "Yes",
			SelectedOption: &handlers.Option{Key: "Y", Label: "Yes"},
		},
	}
	h := &handlers.WaitForHumanHandler{Interviewer: interv}
	_, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)

	q := interv.question
	assert.Equal(t, "gate", q.Stage)
	assert.Equal(t, "Deploy to production?", q.Text)
	assert.Equal(t, handlers.QuestionYesNo, q.Type)
	require.Len(t, q.Options, 2)
	assert.Equal(t, handlers.Option{Key: "Y", Label: "Yes"}, q.Options[0])
	assert.Equal(t, handlers.Option{Key: "N", Label: "No"}, q.Options[1])
}

func TestWaitForHumanHandler_ThreeChoicesAreMultipleChoice(t *testing.T) {
	g := mustGraph(t, `digraph p {
	gate [shape=hexagon, label="What next?"];
	build [shape=box];
	test [shape=box];
	deploy [shape=box];
	gate -> build [label="[B] Build"];
	gate -> test [label="[T] Test"];
	gate -> deploy [label="[D] Deploy"];
}`)
	node := mustNode(t, g, "gate")

	interv := &captureInterviewer{answer: handlers.Answer{Value: "T"}}
	h := &handlers.WaitForHumanHandler{Interviewer: interv}
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, handlers.QuestionMultipleChoice, interv.question.Type)
	assert.Equal(t, []string{"test"}, out.SuggestedNextIDs)
}

func TestWaitForHumanHandler_UnlabeledEdgesAreNotChoices(t *testing.T) {
	g := mustGraph(t, `digraph p {
	gate [shape=hexagon];
	deploy [shape=box];
	audit [shape=box];
	gate -> deploy [label="[Y] Yes"];
	gate -> audit;
}`)
	node := mustNode(t, g, "gate")

	interv := &captureInterviewer{answer: handlers.Answer{Value: "Y"}}
	h := &handlers.WaitForHumanHandler{Interviewer: interv}
	_, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	require.Len(t, interv.question.Options, 1)
	assert.Equal(t, "Y", interv.question.Options[0].Key)
}

func TestWaitForHumanHandler_FreeTextWithoutLabels(t *testing.T) {
	g := mustGraph(t, `digraph p {
	gate [shape=hexagon, label="Any notes before release?"];
	next [shape=box];
	gate -> next;
}`)
	node := mustNode(t, g, "gate")

	interv := &handlers.QueueInterviewer{
		Answers: []handlers.Answer{{Value: "proceed", Text: "proceed"}},
	}
	h := &handlers.WaitForHumanHandler{Interviewer: interv}
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "proceed", out.PreferredLabel)
	assert.Empty(t, out.SuggestedNextIDs)
}

func TestWaitForHumanHandler_InterviewerErrorAborts(t *testing.T) {
	g := mustGraph(t, gateSrc)
	node := mustNode(t, g, "gate")

	h := &handlers.WaitForHumanHandler{Interviewer: &handlers.QueueInterviewer{}}
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), `wait.human "gate"`)
	assert.Contains(t, err.Error(), "exhausted")
}
