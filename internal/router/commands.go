package router

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/NaijaCare/internal/replies"
)

// Command is a transport-level slash command.
type Command string

const (
	CommandNone  Command = ""
	CommandStart Command = "start"
	CommandMenu  Command = "menu"
	CommandReset Command = "reset"
)

// ParseCommand recognizes "/start", "/menu" and "/reset", case-insensitively
// and with an optional "@botname" suffix. Anything else, including unknown
// slash commands, is not a command.
func ParseCommand(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return CommandNone, false
	}
	word := strings.Fields(trimmed[1:])
	if len(word) == 0 {
		return CommandNone, false
	}
	name, _, _ := strings.Cut(word[0], "@")
	switch cmd := Command(strings.ToLower(name)); cmd {
	case CommandStart, CommandMenu, CommandReset:
		return cmd, true
	default:
		return CommandNone, false
	}
}

// HandleCommand runs a slash command for userID.
//
//	start: reset the session to defaults and send the welcome message
//	menu:  send the menu in the current language
//	reset: clear history only, keeping the language mode
func (r *Router) HandleCommand(userID string, cmd Command) Result {
	unlock := r.turns.lock(userID)
	defer unlock()

	res := Result{Command: cmd}
	switch cmd {
	case CommandStart:
		sess := r.sessions.Reset(userID)
		res.Replies = []string{replies.Render(replies.Welcome, sess.Language)}
	case CommandMenu:
		sess := r.sessions.GetOrCreate(userID)
		res.Replies = []string{replies.Render(replies.Menu, sess.Language)}
	case CommandReset:
		sess := r.sessions.ClearHistory(userID)
		res.Replies = []string{replies.Render(replies.HistoryCleared, sess.Language)}
	default:
		slog.Warn("Router.HandleCommand: unknown command", "userID", userID, "command", cmd)
		return res
	}
	r.metrics.ObserveCommand(string(cmd))
	slog.Debug("Router.HandleCommand: handled", "userID", userID, "command", cmd)
	return res
}
