package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/pkg/s3"
)

var rmFlags struct {
	key    string
	prefix string
	all    bool
}

var rmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Delete objects",
	Long: `Delete a single object by key, or with --all every object
under the configured prefix. Deleting a key that does not exist
succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rmFlags.key == "" && !rmFlags.all {
			return fmt.Errorf("either --key or --all is required")
		}
		return runRm()
	},
}

var mbCmd = &cobra.Command{
	Use:   "mb <bucket>",
	Short: "Create a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(func(conn *s3.Connection) error {
			return conn.CreateBucket(args[0], false)
		})
	},
}

var rbCmd = &cobra.Command{
	Use:   "rb <bucket>",
	Short: "Delete an empty bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(func(conn *s3.Connection) error {
			return conn.DelBucket(args[0])
		})
	},
}

// withConnection runs fn against one pooled connection.
func withConnection(fn func(conn *s3.Connection) error) error {
	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	conns, err := rt.borrow(context.Background(), pool, 1)
	if err != nil {
		return err
	}
	defer release(pool, conns)
	return fn(conns[0])
}

func runRm() error {
	cfg := rt.cfg

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	conns, err := rt.borrow(context.Background(), pool, 1)
	if err != nil {
		return err
	}
	defer release(pool, conns)
	conn := conns[0]

	if rmFlags.all {
		prefix := cfg.Transfer.Prefix + rmFlags.prefix
		if err := conn.DelAll(cfg.Transfer.Bucket, prefix, cfg.Transfer.MaxKeysPerBatch); err != nil {
			return err
		}
		rt.logger.Info("deleted all objects", "prefix", prefix)
		return nil
	}

	key := cfg.Transfer.Prefix + rmFlags.key
	if _, err := conn.Del(cfg.Transfer.Bucket, key); err != nil {
		return err
	}
	rt.logger.Info("deleted", "key", key)
	return nil
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mbCmd)
	rootCmd.AddCommand(rbCmd)

	rmCmd.Flags().StringVarP(&rmFlags.key, "key", "k", "", "object key to delete")
	rmCmd.Flags().StringVarP(&rmFlags.prefix, "prefix", "p", "", "with --all, restrict deletion to this prefix")
	rmCmd.Flags().BoolVar(&rmFlags.all, "all", false, "delete every object under the prefix")
}
