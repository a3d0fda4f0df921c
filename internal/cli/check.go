package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/pkg/retry"
	"github.com/s3pipe/s3pipe/pkg/types"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var checkFlags struct {
	prefix  string
	cleanup bool
	delete  bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify objects under a prefix",
	Long: `List every object under a prefix and download each one with a
discarding reader, comparing the bytes received against the size the
listing reported. With --cleanup, stale multipart uploads under the
prefix are aborted first; with --delete, verified objects are removed
afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

// discardLoader counts bytes without keeping them.
func discardLoader(n *int64) func(chunk []byte, totalSizeHint int64) int {
	return func(chunk []byte, _ int64) int {
		*n += int64(len(chunk))
		return len(chunk)
	}
}

func runCheck() error {
	cfg := rt.cfg
	prefix := cfg.Transfer.Prefix + checkFlags.prefix
	ctx := context.Background()

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	conns, err := rt.borrow(ctx, pool, 2)
	if err != nil {
		return err
	}
	defer release(pool, conns)
	lister, conn := conns[0], conns[1]

	retryer := retry.New(cfg.Retry)

	if checkFlags.cleanup {
		aborted := 0
		err := lister.ListAllMultipartUploads(cfg.Transfer.Bucket, prefix, "", cfg.Transfer.MaxKeysPerBatch,
			func(u types.S3MultipartUpload) error {
				if u.IsDir {
					return nil
				}
				err := retryer.DoWithContext(ctx, func(context.Context) error {
					_, err := conn.AbortMultipartUpload(cfg.Transfer.Bucket, u.Key, u.UploadID)
					return err
				})
				if err != nil {
					return err
				}
				aborted++
				return nil
			})
		if err != nil {
			return err
		}
		if aborted > 0 {
			rt.logger.Info("aborted stale multipart uploads", "count", aborted)
		}
	}

	var total int64
	checked, mismatched := 0, 0
	start := time.Now()

	err = lister.ListAllObjects(cfg.Transfer.Bucket, prefix, "", cfg.Transfer.MaxKeysPerBatch,
		func(obj types.S3Object) error {
			if obj.IsDir {
				return nil
			}

			var got int64
			opStart := time.Now()
			rt.collector.RequestStarted()
			var resp *types.S3GetResponse
			err := retryer.DoWithContext(ctx, func(context.Context) error {
				got = 0
				var err error
				resp, err = conn.GetLoader(cfg.Transfer.Bucket, obj.Key, discardLoader(&got))
				return err
			})
			rt.collector.RecordRequest("get", "down", time.Since(opStart), loaded(resp), err)
			if err != nil {
				return err
			}

			checked++
			total += got
			verified := true
			switch {
			case resp.LoadedContentLength < 0:
				mismatched++
				verified = false
				rt.logger.Error("object vanished between listing and download", "key", obj.Key)
			case got != obj.Size:
				mismatched++
				verified = false
				rt.logger.Error("size mismatch",
					"key", obj.Key,
					"listed", obj.Size,
					"received", got)
			}

			if checkFlags.delete && verified {
				err := retryer.DoWithContext(ctx, func(context.Context) error {
					_, err := conn.Del(cfg.Transfer.Bucket, obj.Key)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	rt.logger.Info("check complete",
		"objects", checked,
		"mismatched", mismatched,
		"bytes", utils.FormatBytes(total),
		"elapsed", elapsed,
		"throughput", throughput(total, elapsed))
	if mismatched > 0 {
		return fmt.Errorf("%d of %d objects failed verification", mismatched, checked)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkFlags.prefix, "prefix", "p", "", "verify every object under this prefix")
	checkCmd.Flags().BoolVar(&checkFlags.cleanup, "cleanup", false, "abort stale multipart uploads before verifying")
	checkCmd.Flags().BoolVar(&checkFlags.delete, "delete", false, "delete objects after successful verification")
}
