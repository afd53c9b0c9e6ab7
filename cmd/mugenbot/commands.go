package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"github.com/Mugen-GS/MUGEN-STORE/internal/config"
	"github.com/Mugen-GS/MUGEN-STORE/internal/genai"
)

// --- knowledge ---

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the business knowledge base",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add one knowledge entry",
	Long: `Add one knowledge entry.

Examples:
  mugenbot knowledge add --category pricing --key "RTX 3060 sleeper" --value "$550"
  mugenbot knowledge add --key "warranty" --value "6 months on all builds"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")
		notes, _ := cmd.Flags().GetString("notes")

		if key == "" || value == "" {
			return fmt.Errorf("--key and --value are required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := newAPIClient(cfg)
		body := map[string]string{"category": category, "key": key, "value": value, "notes": notes}
		if err := client.postJSON(cmd.Context(), "/api/business-info", body, nil); err != nil {
			return err
		}

		printSuccess("Added %s: %s", orDefault(category, "general"), key)
		return nil
	},
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all knowledge entries grouped by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := newAPIClient(cfg)
		var grouped map[string]map[string]string
		if err := client.getJSON(cmd.Context(), "/api/business-info", &grouped); err != nil {
			return err
		}

		if len(grouped) == 0 {
			printWarning("knowledge base is empty")
			return nil
		}
		for category, entries := range grouped {
			fmt.Printf("%s:\n", strings.ToUpper(category))
			for key, value := range entries {
				fmt.Printf("  %s: %s\n", key, value)
			}
		}
		return nil
	},
}

var knowledgeImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import knowledge entries from a text or PDF file",
	Long: `Import knowledge entries from a file.

Each line of the form "key: value" becomes one entry. PDF files (product
catalogs, price lists) are converted to text first.

Examples:
  mugenbot knowledge import --file prices.txt --category pricing
  mugenbot knowledge import --file catalog.pdf --category products`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		category, _ := cmd.Flags().GetString("category")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		text, err := readImportFile(file)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newAPIClient(cfg)

		added := 0
		for _, line := range strings.Split(text, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if key == "" || value == "" {
				continue
			}
			body := map[string]string{
				"category": category,
				"key":      key,
				"value":    value,
				"notes":    "imported from " + filepath.Base(file),
			}
			if err := client.postJSON(cmd.Context(), "/api/business-info", body, nil); err != nil {
				return fmt.Errorf("importing %q: %w", key, err)
			}
			added++
		}

		printSuccess("Imported %d entries from %s", added, file)
		return nil
	},
}

func readImportFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		f, reader, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening pdf: %w", err)
		}
		defer f.Close()

		plain, err := reader.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("extracting pdf text: %w", err)
		}
		data, err := io.ReadAll(plain)
		if err != nil {
			return "", fmt.Errorf("reading pdf text: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// --- teach ---

// teachJSON matches the first {...} object in a model reply.
var teachJSON = regexp.MustCompile(`\{[^}]+\}`)

var teachCmd = &cobra.Command{
	Use:   "teach <fact>",
	Short: "Teach the bot a business fact in plain language",
	Long: `Teach the bot a business fact in plain language.

Gemini proposes a category/key/value triple for the fact, and the result is
stored in the knowledge base.

Example:
  mugenbot teach "we deliver nationwide, 3-5 business days"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fact := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		generator := genai.NewClientWithBaseURL(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
		prompt := fmt.Sprintf(`You are an AI assistant learning about a business. Based on this information shared about the business: %q, what category does this belong to and what would be a good key/value pair to store for future reference?

Respond in JSON format with "category", "key", and "value" fields only.`, fact)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		reply, err := generator.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("asking model: %w", err)
		}

		match := teachJSON.FindString(reply)
		if match == "" {
			return fmt.Errorf("model reply contained no JSON suggestion: %s", reply)
		}

		var suggestion struct {
			Category string `json:"category"`
			Key      string `json:"key"`
			Value    string `json:"value"`
		}
		if err := json.Unmarshal([]byte(match), &suggestion); err != nil {
			return fmt.Errorf("parsing model suggestion: %w", err)
		}
		if suggestion.Key == "" || suggestion.Value == "" {
			return fmt.Errorf("model suggestion incomplete: %s", match)
		}

		client := newAPIClient(cfg)
		body := map[string]string{
			"category": suggestion.Category,
			"key":      suggestion.Key,
			"value":    suggestion.Value,
			"notes":    "Auto-saved from teaching session",
		}
		if err := client.postJSON(cmd.Context(), "/api/business-info", body, nil); err != nil {
			return err
		}

		printSuccess("Learned %s: %s = %s", orDefault(suggestion.Category, "general"), suggestion.Key, suggestion.Value)
		return nil
	},
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	knowledgeAddCmd.Flags().String("category", "", "knowledge category (default general)")
	knowledgeAddCmd.Flags().String("key", "", "entry key")
	knowledgeAddCmd.Flags().String("value", "", "entry value")
	knowledgeAddCmd.Flags().String("notes", "", "free-text notes")

	knowledgeImportCmd.Flags().String("file", "", "text or PDF file to import")
	knowledgeImportCmd.Flags().String("category", "", "category for imported entries")

	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeImportCmd)
}
