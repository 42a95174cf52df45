// Command diskuto-web はDiskutoサーバーの読み取り専用Webフロントエンドを起動する。
//
// 使い方:
//
//	diskuto-web [serve|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/diskuto-web/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "diskuto-web: %v\n", err)
		os.Exit(1)
	}
}
