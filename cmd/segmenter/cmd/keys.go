package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/core/auth"
	"github.com/wonderpush/segmenter/internal/core/config"
	"github.com/wonderpush/segmenter/internal/types"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage service API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key for an application",
	Args:  cobra.NoArgs,
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd)
	keysCreateCmd.Flags().String("app", "", "application ID (required)")
	keysCreateCmd.Flags().String("name", "", "key description")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (defaults to the only configured secret)")
	keysCreateCmd.MarkFlagRequired("app")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	appID, _ := cmd.Flags().GetString("app")
	name, _ := cmd.Flags().GetString("name")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if secretID == "" {
		if len(secrets) != 1 {
			return fmt.Errorf("--secret-id required when %d HMAC secrets are configured", len(secrets))
		}
		for id := range secrets {
			secretID = id
		}
	}

	database, queries, err := env.openCatalogue(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	keyID, apiKey, err := auth.CreateAPIKey(ctx, queries, secrets, secretID, types.ApplicationID(appID), name)
	if err != nil {
		return err
	}
	env.logger.Info("API key created", "api_key_id", keyID, "app_id", appID)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key id:  %s\n", keyID)
	fmt.Fprintf(out, "api key: %s\n", apiKey)
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	database, queries, err := env.openCatalogue(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := auth.RevokeAPIKey(ctx, queries, args[0]); err != nil {
		return err
	}
	env.logger.Info("API key revoked", "api_key_id", args[0])
	return nil
}
