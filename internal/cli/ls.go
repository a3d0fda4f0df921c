package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/types"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var lsFlags struct {
	prefix    string
	delimiter string
	uploads   bool
	buckets   bool
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List buckets, objects or in-progress uploads",
	Long: `List the objects under a prefix, one row per key. With a
delimiter, keys sharing a prefix up to the delimiter collapse into a
single directory row. --buckets lists all buckets instead; --uploads
lists in-progress multipart uploads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if lsFlags.buckets {
			return withConnection(runLsBuckets)
		}
		if lsFlags.uploads {
			return withConnection(runLsUploads)
		}
		return withConnection(runLsObjects)
	},
}

func runLsBuckets(conn *s3.Connection) error {
	buckets, err := conn.ListAllBuckets()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, b := range buckets {
		fmt.Fprintf(w, "%s\t%s\n", b.CreationDate, b.Name)
	}
	return w.Flush()
}

func runLsObjects(conn *s3.Connection) error {
	cfg := rt.cfg
	prefix := cfg.Transfer.Prefix + lsFlags.prefix

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	count := 0
	var total int64
	err := conn.ListAllObjects(cfg.Transfer.Bucket, prefix, lsFlags.delimiter, cfg.Transfer.MaxKeysPerBatch,
		func(obj types.S3Object) error {
			if obj.IsDir {
				fmt.Fprintf(w, "\tDIR\t%s\n", obj.Key)
				return nil
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", obj.LastModified, utils.FormatBytes(obj.Size), obj.Key)
			count++
			total += obj.Size
			return nil
		})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	rt.logger.Info("listing complete", "objects", count, "bytes", utils.FormatBytes(total))
	return nil
}

func runLsUploads(conn *s3.Connection) error {
	cfg := rt.cfg
	prefix := cfg.Transfer.Prefix + lsFlags.prefix

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	count := 0
	err := conn.ListAllMultipartUploads(cfg.Transfer.Bucket, prefix, lsFlags.delimiter, cfg.Transfer.MaxKeysPerBatch,
		func(u types.S3MultipartUpload) error {
			if u.IsDir {
				fmt.Fprintf(w, "DIR\t%s\t\n", u.Key)
				return nil
			}
			fmt.Fprintf(w, "\t%s\t%s\n", u.Key, u.UploadID)
			count++
			return nil
		})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	rt.logger.Info("upload listing complete", "uploads", count)
	return nil
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVarP(&lsFlags.prefix, "prefix", "p", "", "list keys under this prefix")
	lsCmd.Flags().StringVarP(&lsFlags.delimiter, "delimiter", "d", "", "collapse keys at this delimiter, e.g. /")
	lsCmd.Flags().BoolVar(&lsFlags.uploads, "uploads", false, "list in-progress multipart uploads")
	lsCmd.Flags().BoolVar(&lsFlags.buckets, "buckets", false, "list all buckets")
}
