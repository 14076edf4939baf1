package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// QuestionType classifies what kind of answer a question expects.
type QuestionType string

const (
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeText       QuestionType = "free_text"
)

// Option is one selectable choice, usually derived from an edge label.
type Option struct {
	Key   string
	Label string
}

// Question is a prompt presented to a human during a run.
type Question struct {
	Stage   string
	Text    string
	Type    QuestionType
	Options []Option
}

// Answer is the human's (or a stand-in's) reply. Value carries the
// accelerator key or raw input; SelectedOption is set when the value
// matched one of the question's options.
type Answer struct {
	Value          string
	Text           string
	SelectedOption *Option
}

// Interviewer supplies answers to wait.human stages. Implementations
// must be safe for concurrent use; one interviewer may serve several
// runs.
type Interviewer interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// ParseAcceleratorKey splits an edge label into an accelerator key and
// display label. Recognized forms are "[K] Label", "K) Label" and
// "K - Label"; anything else keeps the whole text as the label with
// its first character as the key.
func ParseAcceleratorKey(raw string) Option {
	s := strings.TrimSpace(raw)
	if len(s) >= 4 && s[0] == '[' && s[2] == ']' && s[3] == ' ' {
		return Option{Key: string(s[1]), Label: strings.TrimSpace(s[4:])}
	}
	if len(s) >= 3 && s[1] == ')' && s[2] == ' ' {
		return Option{Key: string(s[0]), Label: strings.TrimSpace(s[3:])}
	}
	if len(s) >= 4 && s[1] == ' ' && s[2] == '-' && s[3] == ' ' {
		return Option{Key: string(s[0]), Label: strings.TrimSpace(s[4:])}
	}
	if s == "" {
		return Option{}
	}
	return Option{Key: string(s[0]), Label: s}
}

// AutoApproveInterviewer answers without human involvement: the
// preferred key or label when one is configured and present, a yes-ish
// option for yes/no questions, otherwise the first option. Free-text
// questions get the Preferred text verbatim.
type AutoApproveInterviewer struct {
	Preferred string
}

// Ask implements Interviewer.
func (a *AutoApproveInterviewer) Ask(_ context.Context, q Question) (Answer, error) {
	if q.Type == QuestionFreeText || len(q.Options) == 0 {
		return Answer{Value: a.Preferred, Text: a.Preferred}, nil
	}

	if a.Preferred != "" {
		want := ParseAcceleratorKey(a.Preferred)
		for i := range q.Options {
			opt := q.Options[i]
			if strings.EqualFold(opt.Key, want.Key) || strings.EqualFold(opt.Label, want.Label) {
				return answerFor(opt), nil
			}
		}
	}

	if q.Type == QuestionYesNo {
		for i := range q.Options {
			key := strings.ToLower(q.Options[i].Key)
			if key == "y" || key == "yes" {
				return answerFor(q.Options[i]), nil
			}
		}
	}

	return answerFor(q.Options[0]), nil
}

// QueueInterviewer replays a scripted list of answers in order. When
// the script runs out, Ask fails; tests use this to prove a stage asks
// no more questions than expected.
type QueueInterviewer struct {
	Answers []Answer

	mu   sync.Mutex
	next int
}

// Ask implements Interviewer.
func (qi *QueueInterviewer) Ask(_ context.Context, q Question) (Answer, error) {
	qi.mu.Lock()
	defer qi.mu.Unlock()

	if qi.next >= len(qi.Answers) {
		return Answer{}, fmt.Errorf("interviewer queue exhausted after %d answers (stage %q)", len(qi.Answers), q.Stage)
	}
	ans := qi.Answers[qi.next]
	qi.next++

	// Resolve the scripted value against the offered options so
	// callers see which choice it named.
	if ans.SelectedOption == nil {
		for i := range q.Options {
			opt := q.Options[i]
			if strings.EqualFold(opt.Key, ans.Value) || strings.EqualFold(opt.Label, ans.Value) {
				ans.SelectedOption = &opt
				if ans.Text == "" {
					ans.Text = opt.Label
				}
				break
			}
		}
	}
	return ans, nil
}

// ConsoleInterviewer prompts on a terminal: the question and its
// options go to Out, one line is read from In. An empty line selects
// the first option.
type ConsoleInterviewer struct {
	In  io.Reader
	Out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// Ask implements Interviewer.
func (c *ConsoleInterviewer) Ask(ctx context.Context, q Question) (Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.In
	if in == nil {
		in = os.Stdin
	}
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(in)
	}

	fmt.Fprintf(out, "\n[%s] %s\n", q.Stage, q.Text)
	for _, opt := range q.Options {
		fmt.Fprintf(out, "  [%s] %s\n", opt.Key, opt.Label)
	}
	fmt.Fprint(out, "> ")

	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := c.reader.ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	var line string
	select {
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return Answer{}, fmt.Errorf("read answer: %w", r.err)
		}
		line = strings.TrimSpace(r.line)
	}

	if line == "" && len(q.Options) > 0 {
		return answerFor(q.Options[0]), nil
	}
	for i := range q.Options {
		opt := q.Options[i]
		if strings.EqualFold(opt.Key, line) || strings.EqualFold(opt.Label, line) {
			return answerFor(opt), nil
		}
	}
	return Answer{Value: line, Text: line}, nil
}

func answerFor(opt Option) Answer {
	o := opt
	return Answer{Value: opt.Key, Text: opt.Label, SelectedOption: &o}
}
