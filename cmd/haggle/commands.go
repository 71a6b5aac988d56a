package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/config"
	"github.com/tessler/haggle/internal/ollama"
	"github.com/tessler/haggle/internal/retrieval"
)

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load catalog items into the local store",
	Long: `Load catalog items into the local store from a JSON file.

The file is a JSON array of items:
  [{"id": "sku-1", "name": "Denim Jacket", "category": "jackets",
    "price": 120, "floorPrice": 90, "tags": ["denim"],
    "description": "Classic denim jacket"}]

With --embed, an embedding is generated for each item via Ollama so vector
search works without waiting for first use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		embed, _ := cmd.Flags().GetBool("embed")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		var items []catalog.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parsing seed file: %w", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("seed file contains no items")
		}

		store, err := catalog.Open(cfg.Catalog.DataDir)
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		var embedder *retrieval.Embedder
		if embed {
			client := ollama.New(cfg.Embedding.BaseURL)
			if !client.IsRunning(ctx) {
				return fmt.Errorf("--embed requires Ollama at %s", cfg.Embedding.BaseURL)
			}
			embedder = retrieval.NewEmbedder(client, cfg.Embedding.Model, cfg.EmbedTimeout())
		}

		printStep("Seeding %d items...", len(items))
		var stored, skipped int
		for _, it := range items {
			if embedder != nil && it.Embedding == nil {
				it.Embedding = embedder.Embed(ctx, it.SearchText())
			}
			if err := store.UpsertItem(it); err != nil {
				printWarning("skipping %s: %v", it.ID, err)
				skipped++
				continue
			}
			stored++
		}

		printSuccess("Stored %d items (%d skipped)", stored, skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "path to a JSON catalog file")
	seedCmd.Flags().Bool("embed", false, "generate embeddings via Ollama while seeding")
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

		for _, kv := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, kv.Key), kv.Value)
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
