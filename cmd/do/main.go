package main

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/refactorly/console/cmd/do/cmd"
	"github.com/spf13/cobra"
)

// toolSources are the trees compiled into bin/do. The store commands pull in
// the client store packages, so a schema or adapter change also rebuilds.
var toolSources = []string{
	"cmd/do",
	"internal/db",
	"internal/repository",
	"internal/clientstore",
}

func main() {
	maybeRebuild()

	// Flag defaults read STORE_* from the environment, so .env loads first.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "do",
		Short:        "Development tools for the Refactorly console",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.DevCmd())
	rootCmd.AddCommand(cmd.StoreCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// maybeRebuild recompiles bin/do and re-execs it when any of its sources is
// newer than the binary. Only applies to the bin/do build, not `go run`.
func maybeRebuild() {
	exe, err := os.Executable()
	if err != nil || !strings.HasSuffix(exe, filepath.Join("bin", "do")) {
		return
	}

	info, err := os.Stat(exe)
	if err != nil {
		return
	}

	changed := newerSource(info.ModTime())
	if changed == "" {
		return
	}

	fmt.Printf("%s changed, rebuilding bin/do...\n", changed)
	build := exec.Command("go", "build", "-o", exe, "./cmd/do")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		fmt.Println("Rebuild failed:", err)
		return
	}

	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		fmt.Println("Re-exec failed:", err)
	}
}

// newerSource returns the first Go or SQL file modified after since, or "".
func newerSource(since time.Time) string {
	var found string
	for _, root := range toolSources {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, ".sql") {
				return nil
			}
			if strings.HasSuffix(path, "_test.go") {
				return nil
			}
			info, err := d.Info()
			if err == nil && info.ModTime().After(since) {
				found = path
				return filepath.SkipAll
			}
			return nil
		})
		if found != "" {
			return found
		}
	}
	return ""
}
