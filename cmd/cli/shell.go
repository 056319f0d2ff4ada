package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nickyhof/AdOrchDB/db"
	"github.com/spf13/cobra"
)

// CLI holds the interactive shell state
type CLI struct {
	engine      *db.Engine
	out         io.Writer
	history     []string
	historyFile string
}

func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive statement shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			cli := &CLI{
				engine:      s.db,
				out:         cmd.OutOrStdout(),
				history:     make([]string, 0),
				historyFile: getHistoryPath(),
			}
			cli.loadHistory()
			defer cli.saveHistory()

			cli.printBanner()
			cli.run(cmd.InOrStdin())
			return nil
		},
	}
}

func (cli *CLI) printBanner() {
	fmt.Fprintln(cli.out)
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("AdOrchDB v%s", Version)
	padding := max(bannerWidth-len(versionLine)-2, 0)
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Fprintf(cli.out, "%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintf(cli.out, "%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Fprintf(cli.out, "%s%s║   Asset Approval Record Store         ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintf(cli.out, "%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out)
	if cli.engine.Persistence().IsMemory() {
		fmt.Fprintln(cli.out, "Using an in-memory store: nothing is kept after exit")
	}
	fmt.Fprintln(cli.out, "Type .help for commands, .quit to exit")
	fmt.Fprintln(cli.out)
}

func (cli *CLI) run(in io.Reader) {
	reader := bufio.NewReader(in)
	var multiLineBuffer strings.Builder

	for {
		fmt.Fprint(cli.out, cli.getPrompt(multiLineBuffer.Len() > 0))

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			fmt.Fprintf(cli.out, "\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		input = strings.TrimSuffix(input, "\n")
		input = strings.TrimSuffix(input, "\r")

		if strings.TrimSpace(input) == "" {
			continue
		}

		// Special commands only when not in multi-line mode
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(input, ".") {
			if cli.handleCommand(input) {
				return
			}
			continue
		}

		// Accumulate until we see a semicolon
		multiLineBuffer.WriteString(input)

		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}

		statement := strings.TrimSuffix(trimmed, ";")
		multiLineBuffer.Reset()

		if strings.TrimSpace(statement) == "" {
			continue
		}

		cli.addToHistory(statement + ";")
		cli.execute(statement)
	}
}

func (cli *CLI) execute(statement string) {
	result, err := cli.engine.Execute(statement)
	if err != nil {
		fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		return
	}
	result.Display(cli.out)
}

func (cli *CLI) getPrompt(multiLine bool) string {
	if multiLine {
		return fmt.Sprintf("%s   ...>%s ", PromptColor, ResetColor)
	}
	return fmt.Sprintf("%sadorch>%s ", PromptColor, ResetColor)
}

// handleCommand runs a dot command and reports whether the shell should exit.
func (cli *CLI) handleCommand(input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Fprintf(cli.out, "%sGoodbye!%s\n", SuccessColor, ResetColor)
		return true

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".tables", ".collections":
		cli.showCollections()

	case ".log":
		cli.showLog()

	case ".clear", ".cls":
		fmt.Fprint(cli.out, "\033[H\033[2J")

	case ".history":
		cli.printHistory()

	case ".version":
		fmt.Fprintf(cli.out, "AdOrchDB version %s\n", Version)

	case ".import":
		if len(parts) > 1 {
			if err := importFile(cli.out, cli.engine, parts[1]); err != nil {
				fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			}
		} else {
			fmt.Fprintf(cli.out, "%s✗ Usage: .import <file.sql>%s\n", ErrorColor, ResetColor)
		}

	default:
		fmt.Fprintf(cli.out, "%s✗ Unknown command: %s (type .help for commands)%s\n", ErrorColor, parts[0], ResetColor)
	}

	return false
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  .help, .h        Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit     Exit the shell")
	fmt.Fprintln(cli.out, "  .tables          List collections with record counts")
	fmt.Fprintln(cli.out, "  .log             Show recent snapshot commits")
	fmt.Fprintln(cli.out, "  .import <file>   Execute statements from a file")
	fmt.Fprintln(cli.out, "  .history         Show command history")
	fmt.Fprintln(cli.out, "  .clear           Clear the screen")
	fmt.Fprintln(cli.out, "  .version         Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sStatements:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  SELECT * FROM <collection> [WHERE <column> = <value>];")
	fmt.Fprintln(cli.out, "  SELECT COUNT(*) FROM <collection> [WHERE status = <value>];")
	fmt.Fprintln(cli.out, "  SELECT COUNT(*) FROM approvals WHERE sla_deadline < <time> AND status = 'pending';")
	fmt.Fprintln(cli.out, "  INSERT INTO <collection> (<cols>) VALUES (<vals>);")
	fmt.Fprintln(cli.out, "  DELETE FROM <collection> WHERE id = <id>;")
	fmt.Fprintln(cli.out)
}

func (cli *CLI) showCollections() {
	table := db.NewTable(cli.out)
	table.Header([]string{"collection", "records", "next id"})
	for _, info := range cli.engine.Collections() {
		table.Row([]string{info.Name, fmt.Sprint(info.Records), fmt.Sprint(info.NextID)})
	}
	table.Render()
}

func (cli *CLI) showLog() {
	history, err := cli.engine.Persistence().TransactionsSince(time.Time{})
	if err != nil {
		fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		return
	}
	if len(history) > 10 {
		history = history[:10]
	}
	for _, txn := range history {
		fmt.Fprintf(cli.out, "  %s\n", txn)
	}
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}

	start := max(len(cli.history)-20, 0)
	for i := start; i < len(cli.history); i++ {
		fmt.Fprintf(cli.out, "  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".adorch_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	start := max(len(cli.history)-1000, 0)
	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}
