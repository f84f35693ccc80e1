// Package agent implements the decision loop: the round-capped
// conversation between the oracle and the capability registry that
// turns a user utterance into a reply.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shelfdesk/shelfdesk/internal/chatlog"
	"github.com/shelfdesk/shelfdesk/internal/llm"
	"github.com/shelfdesk/shelfdesk/internal/prompts"
	"github.com/shelfdesk/shelfdesk/internal/tools"
)

// Replies used when the loop cannot produce a real answer. These are
// user-facing; the underlying cause goes to the log.
const (
	roundsExhaustedReply = "I wasn't able to finish that request in the allowed number of steps. Please try a simpler request, or break it into smaller ones."
	emptyReplyNudge      = "Error: your last reply was empty. Answer the user in text, or call a tool."
)

// Options bound a single run of the loop.
type Options struct {
	Model         string
	MaxRounds     int
	HistoryLimit  int
	OracleTimeout time.Duration
	ToolTimeout   time.Duration
}

// Loop drives the oracle against the registry until it produces a
// text reply or runs out of rounds.
type Loop struct {
	logger   *slog.Logger
	oracle   llm.Client
	registry *tools.Registry
	history  *chatlog.Store
	opts     Options
}

// New creates a decision loop.
func New(logger *slog.Logger, oracle llm.Client, registry *tools.Registry, history *chatlog.Store, opts Options) *Loop {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 10
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 2 * time.Minute
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 30 * time.Second
	}
	return &Loop{
		logger:   logger,
		oracle:   oracle,
		registry: registry,
		history:  history,
		opts:     opts,
	}
}

// Run processes one user utterance for a session and returns the
// assistant's reply. It never returns an error: every failure mode is
// rendered as reply text, and both the utterance and the reply are
// persisted to the conversation store.
func (l *Loop) Run(ctx context.Context, sessionID, userMessage string) string {
	start := time.Now()

	prior, err := l.history.Recent(ctx, sessionID, l.opts.HistoryLimit)
	if err != nil {
		l.logger.Error("loading conversation history", "session_id", sessionID, "error", err)
		return "Error processing request: " + err.Error()
	}
	if _, err := l.history.Append(ctx, sessionID, chatlog.RoleUser, userMessage); err != nil {
		l.logger.Error("persisting user turn", "session_id", sessionID, "error", err)
		return "Error processing request: " + err.Error()
	}

	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: "system", Content: prompts.DeskPolicy()})
	for _, turn := range prior {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	toolDefs := l.registry.Definitions()
	toolCtx := tools.WithSession(ctx, sessionID)

	reply := roundsExhaustedReply

	for round := range l.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			reply = "Error processing request: " + err.Error()
			break
		}

		roundStart := time.Now()
		resp, err := l.chatWithTimeout(ctx, messages, toolDefs)
		if err != nil {
			l.logger.Error("oracle call failed",
				"session_id", sessionID,
				"round", round,
				"model", l.opts.Model,
				"error", err,
			)
			reply = "Error processing request: " + err.Error()
			break
		}

		l.logger.Info("oracle response",
			"session_id", sessionID,
			"round", round,
			"model", l.opts.Model,
			"tool_calls", len(resp.Message.ToolCalls),
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"elapsed", time.Since(roundStart).Round(time.Millisecond),
		)

		// No tool calls and real content: the answer is ready.
		if len(resp.Message.ToolCalls) == 0 {
			if resp.Message.Content != "" {
				reply = resp.Message.Content
				break
			}
			// Empty round. Feed the problem back and spend a round on it.
			messages = append(messages,
				resp.Message,
				llm.Message{Role: "user", Content: emptyReplyNudge},
			)
			continue
		}

		messages = append(messages, resp.Message)

		aborted := false
		for _, tc := range resp.Message.ToolCalls {
			argsJSON := ""
			if tc.Function.Arguments != nil {
				argsBytes, _ := json.Marshal(tc.Function.Arguments)
				argsJSON = string(argsBytes)
			}

			result, err := l.executeWithTimeout(toolCtx, tc.Function.Name, argsJSON)
			if err != nil {
				if !tools.IsRecoverable(err) {
					l.logger.Error("tool failed",
						"session_id", sessionID,
						"round", round,
						"tool", tc.Function.Name,
						"error", err,
					)
					reply = "Error processing request: " + err.Error()
					aborted = true
					break
				}
				// Domain and validation failures are information for
				// the oracle, not dead ends.
				l.logger.Warn("tool rejected call",
					"session_id", sessionID,
					"round", round,
					"tool", tc.Function.Name,
					"error", err,
				)
				result = "Error: " + err.Error()
			}

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
		if aborted {
			break
		}
	}

	if _, err := l.history.Append(ctx, sessionID, chatlog.RoleAssistant, reply); err != nil {
		l.logger.Error("persisting assistant turn", "session_id", sessionID, "error", err)
	}

	l.logger.Info("run complete",
		"session_id", sessionID,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return reply
}

func (l *Loop) chatWithTimeout(ctx context.Context, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.opts.OracleTimeout)
	defer cancel()
	return l.oracle.Chat(callCtx, l.opts.Model, messages, toolDefs)
}

func (l *Loop) executeWithTimeout(ctx context.Context, name, argsJSON string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.opts.ToolTimeout)
	defer cancel()
	return l.registry.Execute(callCtx, name, argsJSON)
}
