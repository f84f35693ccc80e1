// Package prompts contains the prompt text sent to the oracle.
//
// Prompt text is Go code rather than config files because it is program
// logic: it encodes the tool-usage contract the decision loop depends on
// (in particular the resolve-ISBN-before-mutation rule) and benefits from
// compile-time embedding and test coverage. User-facing configuration
// lives in shelfdesk.yaml; this package holds the instructions we send to
// models.
package prompts
