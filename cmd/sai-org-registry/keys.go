package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

type generateFlags struct {
	client        string
	name          string
	permissions   []string
	expiresInDays int
	rateLimit     int
}

var generateOpts generateFlags

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create an API key in the configured persistent store",
	Long: `Create an API key in the configured persistent store.

The raw key is printed once and cannot be recovered later. The store must
be persistent (auth.store.type: clover) for the key to survive.

A running server holds the store open and reads keys only at startup, so
run this while the server is stopped; the key is accepted after the next
start. To add a key to a live server use POST /admin/api-keys instead.`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cm, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return err
	}
	cfg := cm.GetConfig()

	if cfg.Auth.Store == nil || cfg.Auth.Store.Type != "clover" {
		return types.Errorf(types.ErrNotSupported, "keys generate needs a persistent api key store, got %q", storeType(cfg.Auth.Store))
	}

	log := logger.NewNop()
	repo, err := apikey.OpenRepository(log, cfg.Auth.Store)
	if err != nil {
		return err
	}

	keys := apikey.NewManager(log, cfg.Auth, repo)
	defer func() { _ = keys.Stop(ctx) }()

	if err := keys.Load(ctx); err != nil {
		return err
	}

	req := apikey.GenerateRequest{
		ClientName:    generateOpts.client,
		Name:          generateOpts.name,
		Permissions:   generateOpts.permissions,
		ExpiresInDays: generateOpts.expiresInDays,
	}
	if generateOpts.rateLimit > 0 {
		limit := generateOpts.rateLimit
		req.RateLimitOverride = &limit
	}

	raw, keyID, err := keys.Generate(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key_id:  %s\n", keyID)
	fmt.Fprintf(out, "api_key: %s\n", raw)
	fmt.Fprintln(out, "Store this key now, it cannot be shown again.")
	return nil
}

func storeType(cfg *types.APIKeyStoreConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.Type
}

func init() {
	keysGenerateCmd.Flags().StringVar(&generateOpts.client, "client", "", "Client name the key is issued to")
	keysGenerateCmd.Flags().StringVar(&generateOpts.name, "name", "", "Optional key label")
	keysGenerateCmd.Flags().StringSliceVar(&generateOpts.permissions, "permissions", []string{"read"}, "Permissions: read, write, admin, statistics")
	keysGenerateCmd.Flags().IntVar(&generateOpts.expiresInDays, "expires-in-days", 0, "Days until expiry, 0 for no expiry")
	keysGenerateCmd.Flags().IntVar(&generateOpts.rateLimit, "rate-limit", 0, "Requests per minute override, 0 for the default")
	_ = keysGenerateCmd.MarkFlagRequired("client")

	keysCmd.AddCommand(keysGenerateCmd)
	rootCmd.AddCommand(keysCmd)
}
