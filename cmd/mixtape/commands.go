package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mixtape/internal/config"
)

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage profile-building sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Started session %s", result["session_id"])
		fmt.Println(result["message"])
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/sessions?limit=%d", limit))
		if err != nil {
			return err
		}

		var sessions []struct {
			ID         string `json:"id"`
			State      string `json:"state"`
			Confidence int    `json:"confidence"`
			Turns      int    `json:"turns"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %-18s confidence: %d  turns: %d\n",
				colorize(colorCyan, s.ID[:8]),
				s.State,
				s.Confidence,
				s.Turns,
			)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}

		var session any
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(session)
	},
}

var sessionTurnCmd = &cobra.Command{
	Use:   "turn <id>",
	Short: "Record one interview exchange",
	Long: `Record one interview exchange on a session.

Examples:
  mixtape session turn abc123 --message "mostly drum and bass while coding" \
    --profile '{"style":{"electronic":32,"intense":28}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		reply, _ := cmd.Flags().GetString("reply")
		profileStr, _ := cmd.Flags().GetString("profile")

		if message == "" {
			return fmt.Errorf("--message is required")
		}
		if profileStr != "" && !json.Valid([]byte(profileStr)) {
			return fmt.Errorf("--profile must be valid JSON")
		}

		req := map[string]any{"message": message}
		if reply != "" {
			req["reply"] = reply
		}
		if profileStr != "" {
			req["profile"] = json.RawMessage(profileStr)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/turns", req)
		if err != nil {
			return err
		}

		var status struct {
			State      string   `json:"state"`
			Confidence int      `json:"confidence"`
			Turns      int      `json:"turns"`
			Missing    []string `json:"missing"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		printStatus("State", "%s", status.State)
		printStatus("Confidence", "%d", status.Confidence)
		printStatus("Turns", "%d", status.Turns)
		if len(status.Missing) > 0 {
			printStatus("Missing", "%s", strings.Join(status.Missing, ", "))
		}
		return nil
	},
}

func init() {
	sessionTurnCmd.Flags().String("message", "", "the listener's message")
	sessionTurnCmd.Flags().String("reply", "", "the interviewer's reply")
	sessionTurnCmd.Flags().String("profile", "", "partial profile JSON extracted from the message")
	sessionListCmd.Flags().Int("limit", 10, "maximum number of sessions to list")
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionTurnCmd)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <session-id>",
	Short: "Generate a playlist from a ready session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		length, _ := cmd.Flags().GetInt("length")

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}
		if length > 0 {
			req["length"] = length
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/generate", req)
		if err != nil {
			return err
		}

		// A conflict is a refusal, not a transport failure: show what the
		// session still needs instead of a raw error dump.
		if resp.StatusCode == 409 {
			var refusal struct {
				Reason     string   `json:"reason"`
				Confidence int      `json:"confidence"`
				Turns      int      `json:"turns"`
				Missing    []string `json:"missing"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&refusal); err != nil {
				resp.Body.Close()
				return fmt.Errorf("server refused generation (failed to decode reason: %w)", err)
			}
			resp.Body.Close()
			printWarning("Not ready to generate: %s", refusal.Reason)
			printStatus("Confidence", "%d", refusal.Confidence)
			printStatus("Turns", "%d", refusal.Turns)
			if len(refusal.Missing) > 0 {
				printStatus("Missing", "%s", strings.Join(refusal.Missing, ", "))
			}
			return fmt.Errorf("session not ready")
		}

		var playlist struct {
			PlaylistID  string `json:"playlist_id"`
			Title       string `json:"title"`
			ProfileCode string `json:"profile_code"`
			Tracks      []struct {
				Title  string  `json:"title"`
				Artist string  `json:"artist"`
				Score  float64 `json:"score"`
			} `json:"tracks"`
		}
		if err := decodeJSON(resp, &playlist); err != nil {
			return err
		}

		printSuccess("Created playlist %q (%s)", playlist.Title, playlist.PlaylistID)
		for i, t := range playlist.Tracks {
			fmt.Printf("%s  %s — %s\n",
				colorize(colorCyan, fmt.Sprintf("%2d.", i+1)),
				t.Title,
				t.Artist,
			)
		}
		printStatus("Profile code", "%s", playlist.ProfileCode)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("title", "", "playlist title (default: dated)")
	generateCmd.Flags().Int("length", 0, "number of tracks (default: configured length)")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the stored preference profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Print the compact profile code",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile/code")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["code"])
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <group.field> <value>",
	Short: "Set one profile field (0-35)",
	Long: `Set one profile field. Fields are addressed group.field and values are
on the 0-35 scale.

Examples:
  mixtape profile set style.electronic 32
  mixtape profile set defaults.activity 2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("value must be an integer: %w", err)
		}

		body, err := nestedIntPatch(key, value)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/profile", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %d", key, value)
		printStatus("Code", "%s", result["code"])
		return nil
	},
}

// nestedIntPatch turns a dotted key like "style.electronic" into the nested
// partial-profile object the PATCH endpoint expects.
func nestedIntPatch(key string, value int) (map[string]any, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("key must be of the form group.field, got %q", key)
	}
	return map[string]any{parts[0]: map[string]any{parts[1]: value}}, nil
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileCodeCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List listening history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			CatalogID    string `json:"CatalogID"`
			Artist       string `json:"Artist"`
			PlayCount    int    `json:"PlayCount"`
			LastPlayedAt string `json:"LastPlayedAt"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No listening history yet.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  plays: %d\n",
				colorize(colorCyan, e.CatalogID),
				e.Artist,
				e.PlayCount,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to list")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
