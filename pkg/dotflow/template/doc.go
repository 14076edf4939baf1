/*
Package template provides variable expansion for pipeline strings.

Node prompts and edge labels may reference pipeline attributes with
${name} or $name placeholders. The canonical case is the graph goal
flowing into a prompt:

	vars := map[string]any{"goal": "add retry support to the client"}
	prompt := template.Expand("You are working toward: $goal", vars)

Both placeholder styles are expanded; the dollar style stops at a word
boundary so $goal never matches inside $goal_gate. Missing variables
are kept as-is by default, which keeps literal dollar amounts in prompt
text intact. Use NewExpander with WithMissingAction to get empty-string
substitution or hard errors instead:

	exp := template.NewExpander(template.WithMissingAction(template.MissingError))
	_, err := exp.Expand("deploy to ${env}", nil)
	// err: "undefined variable: env"

ExpandAll and ExpandMap cover batch cases, such as expanding every
string attribute of a node in one pass. Expander is safe for concurrent
use after construction.
*/
package template
