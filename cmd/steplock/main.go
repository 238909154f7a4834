package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/msageha/steplock/internal/daemon"
	"github.com/msageha/steplock/internal/history"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/setup"
	"github.com/msageha/steplock/internal/status"
	"github.com/msageha/steplock/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "goal":
		runGoal(os.Args[2:])
	case "pending":
		runPending(os.Args[2:])
	case "selection":
		runSelection(os.Args[2:])
	case "shields":
		runShields(os.Args[2:])
	case "unlock":
		runUnlock(os.Args[2:])
	case "trigger":
		runTrigger(os.Args[2:])
	case "apply":
		runApply(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "version":
		fmt.Printf("steplock %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSetup(args []string) {
	var dir string
	switch len(args) {
	case 0:
		dir = defaultSteplockDir()
		if dir == "" {
			fmt.Fprintln(os.Stderr, "error: cannot resolve home directory; set STEPLOCK_DIR")
			os.Exit(1)
		}
	case 1:
		dir = args[0]
	default:
		fmt.Fprintln(os.Stderr, "usage: steplock setup [dir]")
		os.Exit(1)
	}

	if err := setup.Run(dir); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized steplock state in %s\n", absDir)
}

func runDaemon(_ []string) {
	dir := findSteplockDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: steplock directory not found. Run 'steplock setup' first.")
		os.Exit(1)
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(dir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runStop(_ []string) {
	dir := findSteplockDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: steplock directory not found. Run 'steplock setup' first.")
		os.Exit(1)
	}
	sendCommand(dir, "shutdown", nil)
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: steplock status [--json]\n", a)
			os.Exit(1)
		}
	}

	dir := findSteplockDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: steplock directory not found. Run 'steplock setup' first.")
		os.Exit(1)
	}

	if err := status.Run(dir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runGoal(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock goal <show|propose> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "show":
		sendCommand(requireSteplockDir(), "goal_get", nil)
	case "propose":
		runGoalPropose(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown goal subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: steplock goal <show|propose> [options]")
		os.Exit(1)
	}
}

func runGoalPropose(args []string) {
	dryRun := false
	file := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dry-run":
			dryRun = true
		case "--file":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--file requires a value")
				os.Exit(1)
			}
			i++
			file = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: steplock goal propose [--dry-run] [--file <goals.yaml>]\n", args[i])
			os.Exit(1)
		}
	}

	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read goal config: %v\n", err)
		os.Exit(1)
	}

	var cfg model.GoalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse goal config: %v\n", err)
		os.Exit(1)
	}

	params := map[string]any{"config": cfg}
	if dryRun {
		params["dry_run"] = true
	}
	sendCommand(requireSteplockDir(), "goal_propose", params)
}

func runPending(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock pending <show|cancel>")
		os.Exit(1)
	}
	switch args[0] {
	case "show":
		sendCommand(requireSteplockDir(), "pending_get", nil)
	case "cancel":
		sendCommand(requireSteplockDir(), "pending_cancel", nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown pending subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: steplock pending <show|cancel>")
		os.Exit(1)
	}
}

func runSelection(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock selection <show|set> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "show":
		sendCommand(requireSteplockDir(), "selection_get", nil)
	case "set":
		runSelectionSet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown selection subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: steplock selection <show|set> [options]")
		os.Exit(1)
	}
}

func runSelectionSet(args []string) {
	var apps, categories, domains []string
	file := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--app":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--app requires a value")
				os.Exit(1)
			}
			i++
			apps = append(apps, args[i])
		case "--category":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--category requires a value")
				os.Exit(1)
			}
			i++
			categories = append(categories, args[i])
		case "--domain":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--domain requires a value")
				os.Exit(1)
			}
			i++
			domains = append(domains, args[i])
		case "--file":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--file requires a value")
				os.Exit(1)
			}
			i++
			file = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: steplock selection set [--app <id>]... [--category <c>]... [--domain <d>]... [--file <selection.yaml>]\n", args[i])
			os.Exit(1)
		}
	}

	var sel model.Selection
	if len(apps)+len(categories)+len(domains) > 0 {
		if file != "" {
			fmt.Fprintln(os.Stderr, "--file cannot be combined with --app/--category/--domain")
			os.Exit(1)
		}
		sel = model.Selection{Apps: apps, Categories: categories, WebDomains: domains}
	} else {
		var data []byte
		var err error
		if file != "" {
			data, err = os.ReadFile(file)
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read selection: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &sel); err != nil {
			fmt.Fprintf(os.Stderr, "parse selection: %v\n", err)
			os.Exit(1)
		}
	}

	sendCommand(requireSteplockDir(), "selection_set", map[string]any{"selection": sel})
}

func runShields(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock shields <on|off>")
		os.Exit(1)
	}
	var block bool
	switch args[0] {
	case "on":
		block = true
	case "off":
		block = false
	default:
		fmt.Fprintf(os.Stderr, "unknown shields subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: steplock shields <on|off>")
		os.Exit(1)
	}
	sendCommand(requireSteplockDir(), "shields_update", map[string]any{"block": block})
}

func runUnlock(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock unlock <schedule <HH:MM|minute>|cancel>")
		os.Exit(1)
	}
	switch args[0] {
	case "schedule":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: steplock unlock schedule <HH:MM|minute>")
			os.Exit(1)
		}
		minute, err := parseMinuteOfDay(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "unlock schedule: %v\n", err)
			os.Exit(1)
		}
		sendCommand(requireSteplockDir(), "unlock_schedule", map[string]any{"minute_of_day": minute})
	case "cancel":
		sendCommand(requireSteplockDir(), "unlock_cancel", nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown unlock subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: steplock unlock <schedule <HH:MM|minute>|cancel>")
		os.Exit(1)
	}
}

func runTrigger(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: steplock trigger <identifier>")
		os.Exit(1)
	}
	sendCommand(requireSteplockDir(), "trigger", map[string]any{"identifier": args[0]})
}

func runApply(_ []string) {
	sendCommand(requireSteplockDir(), "apply_now", nil)
}

func runHistory(args []string) {
	limit := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--limit requires a value")
				os.Exit(1)
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "invalid --limit value: %s\n", args[i])
				os.Exit(1)
			}
			limit = n
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: steplock history [--limit N]\n", args[i])
			os.Exit(1)
		}
	}

	dir := requireSteplockDir()
	dbPath := filepath.Join(dir, "history.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No decisions recorded.")
		return
	}

	st, err := history.OpenReadOnly(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	decisions, err := st.Recent(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}
	if len(decisions) == 0 {
		fmt.Println("No decisions recorded.")
		return
	}

	fmt.Printf("%-25s  %-20s  %-8s  %-10s  %-20s\n",
		"ID", "REQUESTED", "INTENT", "STATUS", "EFFECTIVE")
	for _, d := range decisions {
		fmt.Printf("%-25s  %-20s  %-8s  %-10s  %-20s\n",
			d.ID, d.RequestedAt, d.Intent, d.Status, d.EffectiveAt)
	}
}

// sendCommand performs one UDS round trip and prints the response data.
func sendCommand(dir, command string, params any) {
	client := uds.NewClient(filepath.Join(dir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}

	if !resp.Success {
		code := ""
		msg := "unknown error"
		if resp.Error != nil {
			code = resp.Error.Code
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", command, code, msg)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(json.RawMessage(resp.Data), "", "  ")
	fmt.Println(string(out))
}

// parseMinuteOfDay accepts "HH:MM" or a bare minute count.
func parseMinuteOfDay(s string) (int, error) {
	if h, m, ok := strings.Cut(s, ":"); ok {
		hh, err := strconv.Atoi(h)
		if err != nil {
			return 0, fmt.Errorf("invalid hour %q", h)
		}
		mm, err := strconv.Atoi(m)
		if err != nil {
			return 0, fmt.Errorf("invalid minute %q", m)
		}
		if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return 0, fmt.Errorf("time %q out of range", s)
		}
		return hh*60 + mm, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid minute of day %q", s)
	}
	return n, nil
}

func requireSteplockDir() string {
	dir := findSteplockDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: steplock directory not found. Run 'steplock setup' first.")
		os.Exit(1)
	}
	return dir
}

// findSteplockDir resolves the state directory: $STEPLOCK_DIR if set,
// otherwise ~/.steplock. Returns "" when the directory does not exist.
func findSteplockDir() string {
	dir := defaultSteplockDir()
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

func defaultSteplockDir() string {
	if dir := os.Getenv("STEPLOCK_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".steplock")
}

func loadConfig(steplockDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(steplockDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `steplock %s — app blocking gated by personal health goals

Usage: steplock <command> [options]

State:
  setup [dir]            Initialize the steplock state directory
  daemon                 Run the gate daemon (foreground)
  stop                   Stop a running daemon
  status [--json]        Show daemon, goal and shield status

Goals (CLI → Daemon):
  goal show              Show the active goal configuration
  goal propose [flags]   Propose a goal edit (YAML on stdin or --file)
  pending show           Show the queued goal change
  pending cancel         Cancel the queued goal change
  apply                  Apply the queued change if it is due

Shields:
  selection show         Show the blocked target set
  selection set [flags]  Replace the blocked target set
  shields <on|off>       Manually raise or drop shields

Unlock:
  unlock schedule <t>    Schedule the daily unlock window (HH:MM or minute)
  unlock cancel          Cancel the daily unlock window
  trigger <id>           Deliver a schedule trigger by identifier

Audit:
  history [--limit N]    Show recorded goal-edit decisions

Utilities:
  version                Show version
  help                   Show this help

`, version)
}
