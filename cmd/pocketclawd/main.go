// Command pocketclawd is a thin host over the bridge API: it runs the
// daemon in the foreground and offers a few one-shot subcommands. It is
// also the reference for how an embedding host (a mobile shell, a service
// wrapper) is expected to drive the bridge.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/basket/pocketclaw/bridge"
)

func printUsage(w io.Writer) {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(w, `Usage of %s:

  %s run                      Start the daemon in the foreground (Ctrl-C stops)
  %s status                   Print the daemon health snapshot as JSON
  %s send <message>           Send one message to a running daemon
  %s validate                 Validate the config file without starting
  %s doctor                   Probe configured channels, print JSON results
  %s scaffold                 Create the workspace directory and identity files
  %s version                  Print the library version

FLAGS:
`, prog, prog, prog, prog, prog, prog, prog, prog)
	flag.PrintDefaults()
	fmt.Fprintf(w, `
ENVIRONMENT VARIABLES:
  POCKETCLAW_HOME             Data directory (default: ~/.pocketclaw)
  POCKETCLAW_API_KEY          Provider API key (overrides config)
  POCKETCLAW_TELEGRAM_TOKEN   Telegram bot token (overrides config)
`)
}

// defaultDataDir resolves POCKETCLAW_HOME, falling back to ~/.pocketclaw.
func defaultDataDir() string {
	if home := os.Getenv("POCKETCLAW_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pocketclaw"
	}
	return filepath.Join(userHome, ".pocketclaw")
}

// readConfigText loads the config file. A missing file means defaults.
func readConfigText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func main() {
	dataDir := flag.String("data", defaultDataDir(), "data directory")
	configPath := flag.String("config", "", "config file path (default: <data>/config.yaml)")
	host := flag.String("host", "127.0.0.1", "gateway bind host")
	port := flag.Uint("port", 18789, "gateway bind port")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, "config.yaml")
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		os.Exit(0)
	case "run":
		os.Exit(runDaemon(*dataDir, *configPath, *host, uint16(*port)))
	case "status":
		os.Exit(runStatus(*dataDir))
	case "send":
		os.Exit(runSend(*host, uint16(*port), args[1:]))
	case "validate":
		os.Exit(runValidate(*configPath))
	case "doctor":
		os.Exit(runDoctor(*dataDir, *configPath))
	case "scaffold":
		os.Exit(runScaffold(*dataDir, args[1:]))
	case "version":
		fmt.Println(bridge.GetVersion())
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

func runDaemon(dataDir, configPath, host string, port uint16) int {
	configText, err := readConfigText(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		return 1
	}

	if err := bridge.Start(configText, dataDir, host, port); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "pocketclawd %s listening on %s:%d (data: %s)\n",
		bridge.GetVersion(), host, port, dataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "shutting down")
	if err := bridge.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		return 1
	}
	return 0
}

func runValidate(configPath string) int {
	configText, err := readConfigText(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		return 1
	}
	msg, err := bridge.ValidateConfig(configText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		return 1
	}
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
		return 1
	}
	fmt.Println("config ok")
	return 0
}

func runDoctor(dataDir, configPath string) int {
	configText, err := readConfigText(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		return 1
	}
	out, err := bridge.DoctorChannels(configText, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
		return 1
	}
	fmt.Println(out)
	return 0
}

func runScaffold(dataDir string, args []string) int {
	fs := flag.NewFlagSet("scaffold", flag.ContinueOnError)
	agentName := fs.String("agent", "", "agent display name")
	userName := fs.String("user", "", "user display name")
	timezone := fs.String("tz", "", "IANA timezone")
	style := fs.String("style", "", "communication style")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	workspacePath := filepath.Join(dataDir, "workspace")
	if err := bridge.ScaffoldWorkspace(workspacePath, *agentName, *userName, *timezone, *style); err != nil {
		fmt.Fprintf(os.Stderr, "scaffold: %v\n", err)
		return 1
	}
	fmt.Printf("workspace ready: %s\n", workspacePath)
	return 0
}
