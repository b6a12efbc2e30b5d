package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"
)

// errNotFound is returned by get when the object is absent.
var errNotFound = errors.New("object not found")

// PutOptions defines the options for the `put` command.
type PutOptions struct {
	*BucketOptions

	Path   string
	Source string
}

var (
	putLong = templates.LongDesc(`
		Write a local file, or standard input when the source is "-" or
		omitted, to PATH in the bucket. An existing object is overwritten.
		The public URL and the metadata reported by storage are printed as
		JSON.`)

	putExample = templates.Examples(`
		# Upload a file
		bucket put reports/2024.csv ./2024.csv

		# Upload from a pipe
		echo hello | bucket put greetings/hello.txt`)
)

func NewPutOptions(root *BucketOptions) *PutOptions {
	return &PutOptions{BucketOptions: root}
}

func NewPutCommand(o *PutOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "put PATH [FILE|-]",
		DisableFlagsInUseLine: true,
		Short:                 "Write an object",
		Long:                  putLong,
		Example:               putExample,
		Args:                  cobra.RangeArgs(1, 2),
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
	return cmd
}

func (o *PutOptions) Complete(cmd *cobra.Command, args []string) error {
	o.Path = args[0]
	o.Source = "-"
	if len(args) > 1 {
		o.Source = args[1]
	}
	return nil
}

func (o *PutOptions) Validate() error {
	return o.validate()
}

func (o *PutOptions) Run(cmd *cobra.Command) error {
	var body io.Reader = o.In
	if o.Source != "-" {
		f, err := os.Open(o.Source)
		if err != nil {
			return err
		}
		defer f.Close()
		body = f
	}

	res, err := o.Gateway().Put(cmd.Context(), o.Bucket, o.Path, body)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(o.Out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

// GetOptions defines the options for the `get` command.
type GetOptions struct {
	*BucketOptions

	Path    string
	OutPath string
}

var getLong = templates.LongDesc(`
	Read a whole object into memory and write it to standard output or to
	the file named by --out. A missing object is an error.`)

func NewGetOptions(root *BucketOptions) *GetOptions {
	return &GetOptions{BucketOptions: root}
}

func NewGetCommand(o *GetOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "get PATH",
		DisableFlagsInUseLine: true,
		Short:                 "Read an object",
		Long:                  getLong,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Path = args[0]
			if err := o.validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().StringVarP(&o.OutPath, "out", "o", "", "Output file (default: stdout)")

	return cmd
}

func (o *GetOptions) Run(cmd *cobra.Command) error {
	data, err := o.Gateway().Get(cmd.Context(), o.Bucket, o.Path)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%s/%s: %w", o.Bucket.Name, o.Path, errNotFound)
	}

	if o.OutPath != "" {
		return os.WriteFile(o.OutPath, data, 0o644)
	}
	_, err = o.Out.Write(data)
	return err
}

// CatOptions defines the options for the `cat` command.
type CatOptions struct {
	*BucketOptions

	Path string
}

var catLong = templates.LongDesc(`
	Stream an object to standard output without buffering it. Unlike get,
	a missing object is reported as a storage error.`)

func NewCatOptions(root *BucketOptions) *CatOptions {
	return &CatOptions{BucketOptions: root}
}

func NewCatCommand(o *CatOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "cat PATH",
		DisableFlagsInUseLine: true,
		Short:                 "Stream an object to stdout",
		Long:                  catLong,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Path = args[0]
			if err := o.validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
}

func (o *CatOptions) Run(cmd *cobra.Command) error {
	stream, err := o.Gateway().GetStreamed(cmd.Context(), o.Bucket, o.Path)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = io.Copy(o.Out, stream)
	return err
}

// ExistsOptions defines the options for the `exists` command.
type ExistsOptions struct {
	*BucketOptions

	Path  string
	Quiet bool
}

func NewExistsOptions(root *BucketOptions) *ExistsOptions {
	return &ExistsOptions{BucketOptions: root}
}

func NewExistsCommand(o *ExistsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "exists PATH",
		DisableFlagsInUseLine: true,
		Short:                 "Report whether an object exists",
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Path = args[0]
			if err := o.validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "Print nothing; fail when the object is missing")

	return cmd
}

func (o *ExistsOptions) Run(cmd *cobra.Command) error {
	ok, err := o.Gateway().Exists(cmd.Context(), o.Bucket, o.Path)
	if err != nil {
		return err
	}
	if o.Quiet {
		if !ok {
			return errNotFound
		}
		return nil
	}
	_, err = fmt.Fprintln(o.Out, ok)
	return err
}

// RmOptions defines the options for the `rm` command.
type RmOptions struct {
	*BucketOptions

	Paths []string
}

func NewRmOptions(root *BucketOptions) *RmOptions {
	return &RmOptions{BucketOptions: root}
}

func NewRmCommand(o *RmOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "rm PATH...",
		DisableFlagsInUseLine: true,
		Short:                 "Delete objects; missing objects are ignored",
		Args:                  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Paths = args
			if err := o.validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
}

func (o *RmOptions) Run(cmd *cobra.Command) error {
	gw := o.Gateway()
	for _, path := range o.Paths {
		if err := gw.DeleteFile(cmd.Context(), o.Bucket, path); err != nil {
			return err
		}
	}
	return nil
}
