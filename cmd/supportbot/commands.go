package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/supportbot/internal/config"
	"github.com/kalambet/supportbot/internal/faq"
)

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := client.newSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionNewCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question within a session",
	Long: `Ask a question within a session.

Without --session a new session is started and its id is printed to stderr
so the conversation can be continued.

Examples:
  supportbot ask "How do I reset my password?"
  supportbot ask --session 3f0c... "And if I no longer have access to my email?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if sessionID == "" {
			sessionID, err = client.newSession(cmd.Context())
			if err != nil {
				return err
			}
			printStep("Session %s", sessionID)
		}

		answer, err := client.ask(cmd.Context(), sessionID, query)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, answer.Response)
		if answer.Escalated {
			printWarning("Escalated to a human agent")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id (default: start a new session)")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "Show the conversation history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		h, err := client.history(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		}

		if len(h.Messages) == 0 {
			fmt.Fprintln(out, "No messages yet.")
			return nil
		}
		for _, m := range h.Messages {
			role := colorize(colorCyan, fmt.Sprintf("%-4s", m.Role))
			if m.Role == "bot" {
				role = colorize(colorGreen, fmt.Sprintf("%-4s", m.Role))
			}
			fmt.Fprintf(out, "%s  %s  %s\n", m.Timestamp.Local().Format(time.DateTime), role, m.Content)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "print the raw JSON history")
}

// --- faqs ---

var faqsCmd = &cobra.Command{
	Use:   "faqs",
	Short: "List the FAQ entries",
	Long: `List the FAQ entries served by the running server.

With --file the given FAQ file (.json, .yaml or .xlsx) is parsed locally
instead, which is handy for checking a file before deploying it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var entries []faq.Entry
		if file != "" {
			loaded, err := faq.Load(file)
			if err != nil {
				return err
			}
			entries = loaded
		} else {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			entries, err = client.faqs(cmd.Context())
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No FAQs loaded.")
			return nil
		}
		for _, e := range entries {
			q := colorize(colorBold, fmt.Sprintf("%d. %s", e.ID, e.Question))
			if e.Category != "" {
				q += " [" + e.Category + "]"
			}
			fmt.Fprintln(out, q)
			fmt.Fprintf(out, "   %s\n", e.Answer)
		}
		return nil
	},
}

func init() {
	faqsCmd.Flags().String("file", "", "parse a local FAQ file instead of querying the server")
}

// --- demo ---

var demoQuestions = []string{
	"How do I reset my password?",
	"What are your business hours?",
	"How can I track my order?",
	"Tell me about your return policy",
	"What's the weather like today?",
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted conversation against the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		delay, _ := cmd.Flags().GetDuration("delay")
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		h, err := client.health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Server is running (LLM available: %t)\n\n", h.LLMAvailable)

		fmt.Fprintln(out, "1. Creating new session...")
		sessionID, err := client.newSession(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "   Session created: %s\n\n", sessionID)

		fmt.Fprintln(out, "2. Loading FAQs...")
		entries, err := client.faqs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "   Loaded %d FAQs\n", len(entries))
		if len(entries) > 0 {
			fmt.Fprintf(out, "   Sample FAQ: %s\n", entries[0].Question)
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, "3. Asking questions...")
		for i, q := range demoQuestions {
			fmt.Fprintf(out, "\n   Question %d: %s\n", i+1, q)
			answer, err := client.ask(ctx, sessionID, q)
			if err != nil {
				fmt.Fprintf(out, "   Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "   Response: %s\n", truncate(answer.Response, 100))
			fmt.Fprintf(out, "   Escalated: %t\n", answer.Escalated)

			if delay > 0 && i < len(demoQuestions)-1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, "4. Getting conversation history...")
		hist, err := client.history(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "   Retrieved %d messages\n", len(hist.Messages))
		fmt.Fprintf(out, "   Session ID: %s\n\n", hist.SessionID)

		fmt.Fprintf(out, "Demo completed. Try the web interface at %s\n", client.baseURL)
		return nil
	},
}

func init() {
	demoCmd.Flags().Duration("delay", time.Second, "pause between questions")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		if cfg.LLMEnabled() {
			fmt.Fprintf(out, "  %s = set\n", colorize(colorBold, cfg.CredentialHint()))
		} else {
			fmt.Fprintf(out, "  %s = not set\n", colorize(colorBold, cfg.CredentialHint()))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var secretAccounts = map[string]string{
	"gemini":     "gemini_api_key",
	"openrouter": "openrouter_api_key",
}

var configSecretCmd = &cobra.Command{
	Use:   "secret <gemini|openrouter>",
	Short: "Store a provider API key in the secrets file",
	Long: `Store a provider API key in the secrets file.

The key is read from stdin so it does not end up in shell history:
  echo "$KEY" | supportbot config secret gemini`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, ok := secretAccounts[args[0]]
		if !ok {
			return fmt.Errorf("unknown provider %q: want gemini or openrouter", args[0])
		}

		value, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := config.SetSecret(account, value); err != nil {
			return err
		}

		printSuccess("Stored %s API key", args[0])
		return nil
	},
}

func readSecret(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && f == os.Stdin {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(os.Stderr, "API key: ")
		}
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading key: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty key")
	}
	return line, nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSecretCmd)
}
