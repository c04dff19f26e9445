package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"foodcal-server-go/internal/bootstrap"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "config file path (default .config.yaml)",
		Sources: cli.EnvVars("FOODCAL_CONFIG"),
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (debug, info, warn, error); overrides the config file",
	}
)

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "foodcal-server",
		Usage:   "Food photo recognition and nutrition estimate service",
		Version: version,
		Flags:   []cli.Flag{configFlag, logLevelFlag},
		Commands: []*cli.Command{
			serveCmd(),
			analyzeCmd(out),
		},
		// 不带子命令时直接启动服务
		Action: runServe,
	}
}

func bootstrapOptions(cmd *cli.Command) bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: cmd.String("config"),
		LogLevel:   cmd.String("log-level"),
		Version:    version,
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP service (default)",
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	fmt.Printf("[%s] [INFO] [引导] 开始启动 foodcal-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	return bootstrap.Run(ctx, bootstrapOptions(cmd))
}

func analyzeCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Run the recognition pipeline once on a local image and print the JSON result",
		Description: `Decodes the image, normalises it to RGB JPEG, asks the configured vision
model and prints exactly what POST /predict would return.

  foodcal-server analyze --image lunch.jpg`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "path to the image file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := bootstrapOptions(cmd)
			// 日志走 stderr，stdout 只输出 JSON
			opts.Console = os.Stderr

			outcome, err := bootstrap.AnalyzeFile(ctx, opts, cmd.String("image"))
			if err != nil {
				return err
			}
			if outcome.Fallback {
				_, _ = fmt.Fprintf(os.Stderr, "fallback at stage %s: %v\n", outcome.Stage, outcome.Err)
			}
			_, err = fmt.Fprintln(out, string(outcome.Payload))
			return err
		},
	}
}
