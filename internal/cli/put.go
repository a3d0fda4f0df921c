package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/internal/buffer"
	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var putFlags struct {
	key         string
	file        string
	size        string
	count       int
	public      bool
	encrypt     bool
	contentType string
}

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Upload objects with pipelined puts",
	Long: `Upload a local file, or a batch of generated objects for
benchmarking. Objects larger than the configured part size are
uploaded as multipart uploads; batches are pipelined across the
connection pool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if putFlags.file != "" {
			return runPutFile()
		}
		return runPutBench()
	},
}

func putOptions() s3.PutOptions {
	return s3.PutOptions{
		MakePublic:    putFlags.public,
		ServerEncrypt: putFlags.encrypt,
		ContentType:   putFlags.contentType,
	}
}

// runPutFile uploads one local file, switching to a multipart upload
// when the file exceeds the configured part size.
func runPutFile() error {
	cfg := rt.cfg
	partSize, err := cfg.PartSizeBytes()
	if err != nil {
		return err
	}

	key := putFlags.key
	if key == "" {
		key = putFlags.file
	}
	key = cfg.Transfer.Prefix + key

	data, err := os.ReadFile(putFlags.file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", putFlags.file, err)
	}

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	conns, err := rt.borrow(ctx, pool, 1)
	if err != nil {
		return err
	}
	defer release(pool, conns)
	conn := conns[0]

	start := time.Now()
	rt.collector.RequestStarted()

	if int64(len(data)) <= partSize {
		_, err = conn.Put(cfg.Transfer.Bucket, key, data, putOptions())
		rt.collector.RecordRequest("put", "up", time.Since(start), int64(len(data)), err)
		if err != nil {
			return err
		}
		rt.logger.Info("uploaded",
			"key", key, "size", utils.FormatBytes(int64(len(data))),
			"elapsed", time.Since(start))
		return nil
	}

	upload, err := conn.NewUpload(cfg.Transfer.Bucket, key, putOptions())
	if err != nil {
		rt.collector.RecordRequest("put", "up", time.Since(start), 0, err)
		return err
	}

	for partNumber, off := 1, int64(0); off < int64(len(data)); partNumber++ {
		end := off + partSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if _, err := upload.PutPart(partNumber, data[off:end]); err != nil {
			_ = upload.Abort()
			rt.collector.RecordRequest("put", "up", time.Since(start), upload.BytesUploaded(), err)
			return err
		}
		off = end
	}

	if _, err := upload.Complete(); err != nil {
		rt.collector.RecordRequest("put", "up", time.Since(start), upload.BytesUploaded(), err)
		return err
	}
	rt.collector.RecordRequest("put", "up", time.Since(start), upload.BytesUploaded(), nil)
	rt.logger.Info("uploaded multipart",
		"key", key, "size", utils.FormatBytes(int64(len(data))),
		"parts", (int64(len(data))+partSize-1)/partSize,
		"elapsed", time.Since(start))
	return nil
}

// runPutBench uploads count generated objects of the given size,
// keeping concurrency requests in flight.
func runPutBench() error {
	cfg := rt.cfg
	size, err := utils.ParseBytes(putFlags.size)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	conns, err := rt.borrow(ctx, pool, cfg.Transfer.Concurrency)
	if err != nil {
		return err
	}
	defer release(pool, conns)

	bufPool := buffer.NewBytePool()
	payload := bufPool.Get(int(size))
	defer bufPool.Put(payload)
	rand.New(rand.NewSource(time.Now().UnixNano())).Read(payload)

	var uploaded int64
	p := newPipeline(conns, cfg.S3.Timeout, func(idx int, started time.Time) error {
		_, err := conns[idx].CompletePut()
		rt.collector.RecordRequest("put", "up", time.Since(started), size, err)
		if err == nil {
			uploaded += size
		}
		return err
	})
	defer p.close()

	start := time.Now()
	for i := 0; i < putFlags.count; i++ {
		key := fmt.Sprintf("%s%s-%06d", cfg.Transfer.Prefix, putFlags.key, i)
		err := p.submit(func(conn *s3.Connection, am *s3.AsyncMan) error {
			rt.collector.RequestStarted()
			return conn.PendPut(am, cfg.Transfer.Bucket, key, payload, putOptions())
		})
		if err != nil {
			return err
		}
		observePool(pool)
	}
	if err := p.drain(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	rt.logger.Info("put benchmark complete",
		"objects", putFlags.count,
		"bytes", utils.FormatBytes(uploaded),
		"elapsed", elapsed,
		"throughput", throughput(uploaded, elapsed))
	return nil
}

func observePool(pool *s3.ConnectionPool) {
	stats := pool.Stats()
	rt.collector.ObservePool(stats.Idle, stats.Total)
}

func throughput(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}
	perSec := float64(bytes) / elapsed.Seconds()
	return utils.FormatBytes(int64(perSec)) + "/s"
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVarP(&putFlags.key, "key", "k", "obj", "object key, or key stem in benchmark mode")
	putCmd.Flags().StringVarP(&putFlags.file, "file", "f", "", "local file to upload")
	putCmd.Flags().StringVarP(&putFlags.size, "size", "s", "1MB", "generated object size in benchmark mode")
	putCmd.Flags().IntVarP(&putFlags.count, "count", "n", 1, "number of objects in benchmark mode")
	putCmd.Flags().BoolVar(&putFlags.public, "public", false, "make objects publicly readable")
	putCmd.Flags().BoolVar(&putFlags.encrypt, "encrypt", false, "request server-side encryption")
	putCmd.Flags().StringVar(&putFlags.contentType, "content-type", "", "content type for uploaded objects")
}
