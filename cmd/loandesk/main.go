// Command loandesk はローン窓口BFFのサーバー・ワーカー・マイグレーションを起動する。
//
//	loandesk [serve|worker|migrate [down]|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/loandesk/internal/app"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Fprintln(os.Stderr, app.Usage)
		return
	}
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
