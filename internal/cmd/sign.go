package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/bucketgate/service/internal/storage"
)

// SignOptions defines the options for the `sign` and `sign-upload`
// commands.
type SignOptions struct {
	*BucketOptions

	Path      string
	ExpiresIn time.Duration
	Upload    bool
}

var (
	signExample = templates.Examples(`
		# Share an object for one hour
		bucket sign reports/2024.csv

		# Share it for five minutes
		bucket sign reports/2024.csv --expires-in 5m`)

	signUploadExample = templates.Examples(`
		# Let someone else write avatars/new.png, then upload with curl
		url=$(bucket sign-upload avatars/new.png)
		curl -X PUT -H 'Content-Type: image/png' --data-binary @new.png "$url"`)
)

func NewSignOptions(root *BucketOptions, upload bool) *SignOptions {
	return &SignOptions{BucketOptions: root, Upload: upload}
}

func NewSignCommand(o *SignOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "sign PATH",
		DisableFlagsInUseLine: true,
		Short:                 "Print a presigned read URL",
		Example:               signExample,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Path = args[0]
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	if o.Upload {
		cmd.Use = "sign-upload PATH"
		cmd.Short = "Print a presigned write URL"
		cmd.Example = signUploadExample
	}

	cmd.Flags().DurationVarP(&o.ExpiresIn, "expires-in", "e", storage.DefaultExpiry, "How long the URL stays valid")

	return cmd
}

func (o *SignOptions) Validate() error {
	if o.ExpiresIn <= 0 {
		return fmt.Errorf("--expires-in must be positive, got %s", o.ExpiresIn)
	}
	return o.validate()
}

func (o *SignOptions) Run(cmd *cobra.Command) error {
	gw := o.Gateway()
	opts := storage.SignOptions{ExpiresIn: o.ExpiresIn}

	var (
		url string
		err error
	)
	if o.Upload {
		url, err = gw.GetSecureUploadURL(cmd.Context(), o.Bucket, o.Path, opts)
	} else {
		url, err = gw.GetSignedURL(cmd.Context(), o.Bucket, o.Path, opts)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(o.Out, url)
	return err
}

// InitOptions defines the options for the `init` command.
type InitOptions struct {
	*BucketOptions

	PublicRead bool
}

var initLong = templates.LongDesc(`
	Create the bucket if it does not exist. With --public-read, anonymous
	GET access to objects is granted so public URLs resolve. Only the
	MinIO/S3 provider supports this.`)

func NewInitOptions(root *BucketOptions) *InitOptions {
	return &InitOptions{BucketOptions: root}
}

func NewInitCommand(o *InitOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "init",
		DisableFlagsInUseLine: true,
		Short:                 "Create the bucket",
		Long:                  initLong,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			if err := o.Gateway().EnsureBucket(cmd.Context(), o.Bucket, o.PublicRead); err != nil {
				return err
			}
			_, err := fmt.Fprintf(o.Out, "bucket %q ready\n", o.Bucket.Name)
			return err
		},
	}

	cmd.Flags().BoolVar(&o.PublicRead, "public-read", false, "Allow anonymous reads of objects")

	return cmd
}
