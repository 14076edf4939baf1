// Package expr evaluates edge-condition expressions against pipeline
// execution state.
//
// The grammar is deliberately small. A condition is boolean clauses
// joined by && / || (or the word forms "and" / "or"; && binds tighter),
// optionally negated with "not " or "!". Each clause is either a
// comparison
//
//	outcome = success
//	outcome != fail
//	context.retry_count >= 3
//	notes contains "timeout"
//
// or a bare key, which is truthy when the resolved value is non-empty,
// non-zero, and not false:
//
//	context.approved
//
// Keys resolve against the variable map: flat keys first, then dotted
// paths walk nested maps (context.build.status). Unknown keys resolve to
// the empty string, so conditions on absent state evaluate false rather
// than erroring.
//
// Comparison operators: == (and its single-equals spelling =), !=, >=,
// <=, >, <, =~, !~, contains. The =~ and !~ forms treat the right
// operand as a regular expression; a pattern that does not compile
// matches nothing. Custom binary operators can be registered on an
// Evaluator.
//
// Evaluation is pure: the same expression, outcome, and context always
// produce the same boolean, and nothing is mutated.
package expr
