package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/bucketgate/service/internal/client"
)

// UploadOptions defines the options for the `upload` command.
type UploadOptions struct {
	file *client.File

	Endpoint    string
	Token       string
	ContentType string
	Timeout     time.Duration
	Path        string

	iooption.IOStreams
}

var (
	uploadLong = templates.LongDesc(`
		Upload a local file the way a browser does: request a presigned URL
		from the upload service, then PUT the bytes straight to storage.
		Prints the public URL of the new object.`)

	uploadExample = templates.Examples(`
		# Upload through a local API
		bucket upload ./me.png --url http://localhost:8080/api/v1/uploads

		# With a bearer token and an explicit type
		bucket upload ./data.bin --url https://api.example.com/api/v1/uploads \
		  --token "$TOKEN" --content-type application/octet-stream`)
)

func NewUploadOptions(streams iooption.IOStreams) *UploadOptions {
	return &UploadOptions{IOStreams: streams}
}

func NewUploadCommand(o *UploadOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "upload FILE",
		DisableFlagsInUseLine: true,
		Short:                 "Upload a file through the upload service",
		Long:                  uploadLong,
		Example:               uploadExample,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().StringVar(&o.Endpoint, "url", "http://localhost:8080/api/v1/uploads", "Upload service URL")
	cmd.Flags().StringVar(&o.Token, "token", "", "Bearer token for the upload service")
	cmd.Flags().StringVar(&o.ContentType, "content-type", "", "Override the detected content type")
	cmd.Flags().DurationVarP(&o.Timeout, "timeout", "t", 5*time.Minute, "Overall upload timeout")

	return cmd
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	o.Path = args[0]
	return nil
}

func (o *UploadOptions) Validate() error {
	if o.Endpoint == "" {
		return fmt.Errorf("--url is required")
	}

	f, err := client.OpenFile(o.Path)
	if err != nil {
		return err
	}
	if o.ContentType != "" {
		f.ContentType = o.ContentType
	}
	o.file = f

	return nil
}

func (o *UploadOptions) Run(cmd *cobra.Command) error {
	defer o.file.Close()

	header := http.Header{}
	if o.Token != "" {
		header.Set("Authorization", "Bearer "+o.Token)
	}

	res, err := client.Upload(cmd.Context(), o.file, client.Options{
		HandleUploadURL: o.Endpoint,
		Header:          header,
		HTTPClient:      &http.Client{Timeout: o.Timeout},
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(o.Out, res.URL)
	return err
}
