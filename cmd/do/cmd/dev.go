package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/refactorly/console/internal/db"
	"github.com/spf13/cobra"
)

func DevCmd() *cobra.Command {
	var appPort, proxyPort string

	devCmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the console under air with hot reload",
		Long: "Migrates the client store, then runs the console under air. The browser\n" +
			"talks to the proxy port, which reloads the page after every rebuild.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(appPort, proxyPort)
		},
	}
	devCmd.Flags().StringVar(&appPort, "port", "8090", "port the console listens on")
	devCmd.Flags().StringVar(&proxyPort, "proxy-port", "8080", "port of the live-reload proxy")

	return devCmd
}

func runDev(appPort, proxyPort string) error {
	airPath, err := exec.LookPath("air")
	if err != nil {
		fmt.Println("Missing binary: air")
		fmt.Println("Install with:")
		fmt.Println("  go install github.com/air-verse/air@latest")
		return fmt.Errorf("air not found")
	}

	// Fail before air starts looping on a broken schema.
	driver := envOr("STORE_DRIVER", "sqlite")
	if driver != "memory" {
		database, err := db.Open(driver, envOr("STORE_CONNECTION", defaultConnection))
		if err != nil {
			return fmt.Errorf("failed to migrate client store: %w", err)
		}
		_ = database.Close()
	}

	airArgs := []string{
		"air",
		"-c", "/dev/null",
		"-root", ".",
		"-build.cmd", "go build -o ./tmp/console ./cmd/server",
		"-build.bin", "./tmp/console",
		"-build.delay", "100",
		"-build.exclude_dir", "bin,tmp,data,_examples",
		"-build.exclude_regex", "_test.go$",
		"-build.include_ext", "go,sql",
		"-build.kill_delay", "700ms",
		"-build.send_interrupt", "true",
		"-proxy.enabled", "true",
		"-proxy.proxy_port", proxyPort,
		"-proxy.app_port", appPort,
	}

	env := append(os.Environ(), "PORT="+appPort)
	fmt.Printf("Console on http://localhost:%s (proxied from :%s)\n", proxyPort, appPort)

	return syscall.Exec(airPath, airArgs, env)
}
