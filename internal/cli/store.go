package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage recordings kept in a store",
		Long: `Pushes, lists, fetches and deletes recordings in the recording store.

Stored recordings are addressed by their request id and can be served
with "sockreplay serve --request-id <id>". The memory backend only lives
as long as the process, so these commands are meant for --store redis.`,
	}

	cmd.AddCommand(
		newStorePushCmd(),
		newStoreListCmd(),
		newStoreGetCmd(),
		newStoreDeleteCmd(),
	)
	return cmd
}

type storeCmdOptions struct {
	configPath string
	store      storeOptions
}

func (o *storeCmdOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "path to a JSON, JSONC or YAML config file")
	o.store.addFlags(cmd.Flags())
}

// withStore resolves the store config, opens the store and runs fn with it.
func (o *storeCmdOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, store recording.Store) error) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	if err := o.store.applyChangedFlags(cmd.Flags(), &cfg.Store); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Store.Backend == recording.BackendMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: the memory store is discarded when this command exits")
	}
	return fn(ctx, store)
}

func newStorePushCmd() *cobra.Command {
	var (
		o         storeCmdOptions
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "push <recording-file>...",
		Short: "Load recording files into the store",
		Example: `  sockreplay store push session.json --store redis
  sockreplay store push a.json b.yaml.gz --store redis --redis-ttl 24h
  sockreplay store push session.json --request-id login-flow --store redis`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID != "" && len(args) > 1 {
				return fmt.Errorf("--request-id can only be used with a single file")
			}
			return o.withStore(cmd, func(ctx context.Context, store recording.Store) error {
				for _, path := range args {
					src, err := recording.NewFileSource(path)
					if err != nil {
						return err
					}
					rec, err := src.Load(ctx)
					if err != nil {
						return err
					}
					if requestID != "" {
						rec.RequestID = requestID
					}
					if rec.RequestID == "" {
						return fmt.Errorf("%s has no requestId; pass --request-id", path)
					}
					if err := store.Put(ctx, rec); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d messages) from %s\n", rec.RequestID, len(rec.Messages), path)
				}
				return nil
			})
		},
	}

	o.addFlags(cmd)
	cmd.Flags().StringVar(&requestID, "request-id", "", "store under this id instead of the recording's requestId")
	return cmd
}

func newStoreListCmd() *cobra.Command {
	var o storeCmdOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored request ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(cmd, func(ctx context.Context, store recording.Store) error {
				ids, err := store.List(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}

	o.addFlags(cmd)
	return cmd
}

func newStoreGetCmd() *cobra.Command {
	var (
		o      storeCmdOptions
		output string
	)

	cmd := &cobra.Command{
		Use:     "get <request-id>",
		Short:   "Write a stored recording to a file",
		Example: `  sockreplay store get login-flow --output login-flow.yaml --store redis`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(cmd, func(ctx context.Context, store recording.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = args[0] + ".json"
				}
				if err := recording.WriteFile(path, rec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s\n", args[0], path)
				return nil
			})
		},
	}

	o.addFlags(cmd)
	cmd.Flags().StringVar(&output, "output", "", "output file (default <request-id>.json)")
	return cmd
}

func newStoreDeleteCmd() *cobra.Command {
	var o storeCmdOptions

	cmd := &cobra.Command{
		Use:   "delete <request-id>...",
		Short: "Delete stored recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(cmd, func(ctx context.Context, store recording.Store) error {
				for _, id := range args {
					if err := store.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}

	o.addFlags(cmd)
	return cmd
}
