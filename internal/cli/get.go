package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/types"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var getFlags struct {
	key       string
	prefix    string
	outputDir string
	offset    int64
	length    string
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Download one object or everything under a prefix",
	Long: `Download a single object, optionally a byte range of it, or
every object under a prefix. Downloads land in the output directory
under their key; keys that would escape the directory are rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if getFlags.key != "" {
			return runGetOne()
		}
		if getFlags.prefix != "" || rt.cfg.Transfer.Prefix != "" {
			return runGetPrefix()
		}
		return fmt.Errorf("either --key or --prefix is required")
	},
}

// fileLoader returns a loader streaming the response body straight to
// file. Write failures stop the transfer and surface through errp.
func fileLoader(file *os.File, errp *error) s3.Loader {
	return func(chunk []byte, _ int64) int {
		if *errp != nil {
			return 0
		}
		n, err := file.Write(chunk)
		if err != nil {
			*errp = err
		}
		return n
	}
}

func outputPath(key string) (string, error) {
	if err := utils.ValidatePath(key, false); err != nil {
		return "", err
	}
	return utils.SecureJoin(getFlags.outputDir, filepath.FromSlash(key))
}

func createOutputFile(key string) (*os.File, string, error) {
	path, err := outputPath(key)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return file, path, nil
}

func runGetOne() error {
	cfg := rt.cfg
	key := cfg.Transfer.Prefix + getFlags.key

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

	file, path, err := createOutputFile(getFlags.key)
	if err != nil {
		return err
	}
	defer file.Close()

	start := time.Now()
	rt.collector.RequestStarted()

	var resp *types.S3GetResponse
	if getFlags.length != "" {
		n, err := utils.ParseBytes(getFlags.length)
		if err != nil {
			return fmt.Errorf("invalid --length: %w", err)
		}
		buf := make([]byte, n)
		am := s3.NewAsyncMan()
		defer am.Close()
		if err := conn.PendGet(am, cfg.Transfer.Bucket, key, buf, getFlags.offset); err != nil {
			return err
		}
		resp, err = conn.CompleteGet()
		rt.collector.RecordRequest("get", "down", time.Since(start), loaded(resp), err)
		if err != nil {
			return err
		}
		if _, err := file.Write(buf[:loaded(resp)]); err != nil {
			return err
		}
	} else {
		var writeErr error
		resp, err = conn.GetLoader(cfg.Transfer.Bucket, key, fileLoader(file, &writeErr))
		rt.collector.RecordRequest("get", "down", time.Since(start), loaded(resp), err)
		if err != nil {
			return err
		}
		if writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", path, writeErr)
		}
	}

	if resp.LoadedContentLength < 0 {
		_ = os.Remove(path)
		return fmt.Errorf("object not found: %s", key)
	}
	rt.logger.Info("downloaded",
		"key", key, "path", path,
		"size", utils.FormatBytes(resp.LoadedContentLength),
		"elapsed", time.Since(start))
	return nil
}

func runGetPrefix() error {
	cfg := rt.cfg
	prefix := cfg.Transfer.Prefix + getFlags.prefix

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	// Listing streams rows while its response is still being parsed,
	// so downloads go through a second connection.
	conns, err := rt.borrow(context.Background(), pool, 2)
	if err != nil {
		return err
	}
	defer release(pool, conns)
	lister, conn := conns[0], conns[1]

	var total int64
	count := 0
	start := time.Now()

	err = lister.ListAllObjects(cfg.Transfer.Bucket, prefix, "", cfg.Transfer.MaxKeysPerBatch,
		func(obj types.S3Object) error {
			file, path, err := createOutputFile(obj.Key)
			if err != nil {
				rt.logger.Warn("skipping key", "key", obj.Key, "error", err)
				return nil
			}
			defer file.Close()

			opStart := time.Now()
			rt.collector.RequestStarted()
			var writeErr error
			resp, err := conn.GetLoader(cfg.Transfer.Bucket, obj.Key, fileLoader(file, &writeErr))
			rt.collector.RecordRequest("get", "down", time.Since(opStart), loaded(resp), err)
			if err != nil {
				return err
			}
			if writeErr != nil {
				return fmt.Errorf("failed to write %s: %w", path, writeErr)
			}
			total += loaded(resp)
			count++
			return nil
		})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	rt.logger.Info("prefix download complete",
		"objects", count,
		"bytes", utils.FormatBytes(total),
		"elapsed", elapsed,
		"throughput", throughput(total, elapsed))
	return nil
}

func loaded(resp *types.S3GetResponse) int64 {
	if resp == nil || resp.LoadedContentLength < 0 {
		return 0
	}
	return resp.LoadedContentLength
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getFlags.key, "key", "k", "", "object key to download")
	getCmd.Flags().StringVarP(&getFlags.prefix, "prefix", "p", "", "download every object under this prefix")
	getCmd.Flags().StringVarP(&getFlags.outputDir, "output-dir", "o", ".", "directory downloads are written to")
	getCmd.Flags().Int64Var(&getFlags.offset, "offset", -1, "byte offset for a ranged read")
	getCmd.Flags().StringVar(&getFlags.length, "length", "", "byte length for a ranged read, e.g. 64KB")
}
