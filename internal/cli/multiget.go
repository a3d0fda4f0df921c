package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/internal/buffer"
	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/types"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var multigetFlags struct {
	key        string
	prefix     string
	count      int
	shards     int
	bufferSize string
}

var multigetCmd = &cobra.Command{
	Use:   "multiget",
	Short: "Download many objects with pipelined gets",
	Long: `Download a batch of objects concurrently, keeping concurrency
requests in flight across the connection pool. Keys are either
enumerated from a prefix or generated from a key stem and count,
matching what the put benchmark writes. Bodies are read into pooled
buffers and discarded; this driver measures download throughput.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if multigetFlags.shards > 0 {
			return runMultigetShards()
		}
		if multigetFlags.prefix != "" {
			return runMultigetPrefix()
		}
		return runMultigetCount()
	},
}

// multigetRun pipelines whole-object gets for the supplied keys across
// the borrowed connections, reusing one pooled buffer per connection.
func multigetRun(keys func(yield func(key string) error) error) error {
	cfg := rt.cfg

	bufSize, err := utils.ParseBytes(multigetFlags.bufferSize)
	if err != nil {
		return fmt.Errorf("invalid --buffer-size: %w", err)
	}

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	conns, err := rt.borrow(context.Background(), pool, cfg.Transfer.Concurrency)
	if err != nil {
		return err
	}
	defer release(pool, conns)

	bufPool := buffer.NewBytePool()
	bufs := make([][]byte, len(conns))
	for i := range bufs {
		bufs[i] = bufPool.Get(int(bufSize))
		defer bufPool.Put(bufs[i])
	}

	var total int64
	count, truncated := 0, 0
	p := newPipeline(conns, cfg.S3.Timeout, func(idx int, started time.Time) error {
		resp, err := conns[idx].CompleteGet()
		rt.collector.RecordRequest("get", "down", time.Since(started), loaded(resp), err)
		if err != nil {
			return err
		}
		if resp.LoadedContentLength < 0 {
			return fmt.Errorf("object not found during multiget")
		}
		if resp.IsTruncated {
			truncated++
		}
		total += loaded(resp)
		count++
		return nil
	})
	defer p.close()

	start := time.Now()
	err = keys(func(key string) error {
		return p.submit(func(conn *s3.Connection, am *s3.AsyncMan) error {
			rt.collector.RequestStarted()
			for i := range conns {
				if conns[i] == conn {
					return conn.PendGet(am, cfg.Transfer.Bucket, key, bufs[i], -1)
				}
			}
			return fmt.Errorf("connection not in borrowed set")
		})
	})
	if err != nil {
		return err
	}
	if err := p.drain(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	rt.logger.Info("multiget complete",
		"objects", count,
		"bytes", utils.FormatBytes(total),
		"truncated", truncated,
		"elapsed", elapsed,
		"throughput", throughput(total, elapsed))
	if truncated > 0 {
		rt.logger.Warn("some objects exceeded the buffer size",
			"truncated", truncated,
			"buffer_size", multigetFlags.bufferSize)
	}
	return nil
}

// runMultigetCount downloads count generated keys, mirroring the key
// naming of the put benchmark.
func runMultigetCount() error {
	cfg := rt.cfg
	return multigetRun(func(yield func(key string) error) error {
		for i := 0; i < multigetFlags.count; i++ {
			key := fmt.Sprintf("%s%s-%06d", cfg.Transfer.Prefix, multigetFlags.key, i)
			if err := yield(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// runMultigetPrefix enumerates keys under the prefix on a dedicated
// connection from its own pool and pipelines the downloads over
// connections from a separate pool.
func runMultigetPrefix() error {
	cfg := rt.cfg
	prefix := cfg.Transfer.Prefix + multigetFlags.prefix

	listPool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer listPool.Close()

	conns, err := rt.borrow(context.Background(), listPool, 1)
	if err != nil {
		return err
	}
	defer release(listPool, conns)
	lister := conns[0]

	// The listing completes before the downloads start, so a full
	// enumeration pass bounds memory to the key names only.
	var keys []string
	err = lister.ListAllObjects(cfg.Transfer.Bucket, prefix, "", cfg.Transfer.MaxKeysPerBatch,
		func(obj types.S3Object) error {
			keys = append(keys, obj.Key)
			return nil
		})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no objects under prefix %q", prefix)
	}

	return multigetRun(func(yield func(key string) error) error {
		for _, key := range keys {
			if err := yield(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// runMultigetShards splits one object into per-connection byte ranges
// and fetches them in parallel with offset gets.
func runMultigetShards() error {
	cfg := rt.cfg
	key := cfg.Transfer.Prefix + multigetFlags.key

	pool, err := rt.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	nconns := multigetFlags.shards
	if nconns > cfg.Transfer.Concurrency {
		nconns = cfg.Transfer.Concurrency
	}
	conns, err := rt.borrow(context.Background(), pool, nconns)
	if err != nil {
		return err
	}
	defer release(pool, conns)

	size, err := objectSize(conns[0], cfg.Transfer.Bucket, key)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("object %q is empty, nothing to shard", key)
	}

	shards := int64(multigetFlags.shards)
	if shards > size {
		shards = size
	}
	shardLen := (size + shards - 1) / shards

	bufPool := buffer.NewBytePool()
	body := bufPool.Get(int(size))
	defer bufPool.Put(body)

	var total int64
	p := newPipeline(conns, cfg.S3.Timeout, func(idx int, started time.Time) error {
		resp, err := conns[idx].CompleteGet()
		rt.collector.RecordRequest("get", "down", time.Since(started), loaded(resp), err)
		if err != nil {
			return err
		}
		if resp.LoadedContentLength < 0 {
			return fmt.Errorf("object %q vanished during sharded get", key)
		}
		total += loaded(resp)
		return nil
	})
	defer p.close()

	start := time.Now()
	for offset := int64(0); offset < size; offset += shardLen {
		end := offset + shardLen
		if end > size {
			end = size
		}
		shard := body[offset:end]
		off := offset
		err := p.submit(func(conn *s3.Connection, am *s3.AsyncMan) error {
			rt.collector.RequestStarted()
			return conn.PendGet(am, cfg.Transfer.Bucket, key, shard, off)
		})
		if err != nil {
			return err
		}
	}
	if err := p.drain(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	if total != size {
		return fmt.Errorf("sharded get of %q returned %d of %d bytes", key, total, size)
	}
	rt.logger.Info("sharded get complete",
		"key", key,
		"shards", shards,
		"bytes", utils.FormatBytes(total),
		"elapsed", elapsed,
		"throughput", throughput(total, elapsed))
	return nil
}

// objectSize resolves the size of one key through a listing probe.
func objectSize(conn *s3.Connection, bucket, key string) (int64, error) {
	size := int64(-1)
	err := conn.ListAllObjects(bucket, key, "", 0, func(obj types.S3Object) error {
		if obj.Key == key {
			size = obj.Size
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, fmt.Errorf("object %q not found", key)
	}
	return size, nil
}

func init() {
	rootCmd.AddCommand(multigetCmd)

	multigetCmd.Flags().StringVarP(&multigetFlags.key, "key", "k", "obj", "key stem for generated keys")
	multigetCmd.Flags().StringVarP(&multigetFlags.prefix, "prefix", "p", "", "download every object under this prefix")
	multigetCmd.Flags().IntVarP(&multigetFlags.count, "count", "n", 1, "number of generated keys to download")
	multigetCmd.Flags().IntVar(&multigetFlags.shards, "shards", 0, "split a single object into this many ranged gets")
	multigetCmd.Flags().StringVar(&multigetFlags.bufferSize, "buffer-size", "8MB", "read buffer per connection, e.g. 8MB")
}
