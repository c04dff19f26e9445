// @title FoodCal API
// @version 1.0
// @description 食物照片识别与营养估算服务
// @BasePath /
package main

import (
	"context"
	"fmt"
	"os"
)

// overridden during build with ldflags
var version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "foodcal-server failed: %v\n", err)
		os.Exit(1)
	}
}
