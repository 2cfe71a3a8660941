package app

import "strings"

// Command は起動するサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// Usage は標準エラーに表示する使い方。
const Usage = `usage: loandesk [serve|worker|migrate [down]|healthcheck]`

func (c Command) String() string {
	return string(c)
}

// Invocation はコマンドライン引数の解析結果。
type Invocation struct {
	Command Command
	// Rollback は "migrate down" のときtrue。
	Rollback bool
}

// ParseInvocation はos.Args[1:]を解析する。
// 引数なしや未知のサブコマンドはserveとして扱う。
func ParseInvocation(args []string) Invocation {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}
	}

	switch name := Command(strings.ToLower(strings.TrimSpace(args[0]))); name {
	case CommandWorker, CommandHealthcheck:
		return Invocation{Command: name}
	case CommandMigrate:
		down := len(args) > 1 && strings.EqualFold(args[1], "down")
		return Invocation{Command: CommandMigrate, Rollback: down}
	default:
		return Invocation{Command: CommandServe}
	}
}
