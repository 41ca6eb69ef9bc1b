// Command inkstudio はタトゥーデザインアプリのAPIサーバーとワーカーを起動する。
//
// 使い方:
//
//	inkstudio [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/inkstudio/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "inkstudio: %v\n", err)
		os.Exit(1)
	}
}
