// Command litreview は書籍レビューサービスのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	litreview [serve|worker|cleanup|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/litreview/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
