//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brindlecore/subexec"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	path := flag.String("path", "/bin/echo", "executable to spawn")
	timeout := flag.Duration("timeout", 5*time.Second, "wait budget for the child")
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("subexec-probe")

	subexec.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stdout, stderr, status, err := subexec.RunCaptured(ctx, subexec.Request{
		Path: *path,
		Args: flag.Args(),
	})
	if err != nil {
		log.Error("run failed", zap.Error(err))
		os.Exit(1)
	}

	if code, ok := status.Exited(); ok {
		log.Info("child exited", zap.Int("code", code))
	} else if sig, ok := status.Signaled(); ok {
		log.Info("child signaled", zap.String("signal", sig.String()))
	}

	fmt.Print(string(stdout))
	fmt.Fprint(os.Stderr, string(stderr))
}
