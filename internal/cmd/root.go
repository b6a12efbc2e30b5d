// Package cmd implements the bucket command line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/bucketgate/service/internal/config"
	"github.com/bucketgate/service/internal/storage"
)

var (
	rootLong = templates.LongDesc(`
		Operate on an object storage bucket through the same gateway the
		upload service uses. Connection settings default to the STORAGE_*
		environment variables and may be overridden with flags.`)

	rootExamples = templates.Examples(`
		# Store a file and print its public URL
		bucket put avatars/me.png ./me.png

		# Mint a read URL valid for ten minutes
		bucket sign avatars/me.png --expires-in 10m`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// BucketOptions holds the connection shared by every subcommand.
type BucketOptions struct {
	Bucket    storage.Bucket
	JWTSecret string

	// Dial overrides the storage dialer, nil means storage.Dial.
	Dial storage.Dialer

	iooption.IOStreams
}

// NewBucketOptions provides BucketOptions seeded from cfg.
func NewBucketOptions(cfg *config.Config, streams iooption.IOStreams) *BucketOptions {
	o := &BucketOptions{IOStreams: streams}
	if cfg != nil {
		o.Bucket = cfg.Bucket
		o.JWTSecret = cfg.JWTSecret
	}
	return o
}

// Gateway returns a storage gateway using the configured dialer.
func (o *BucketOptions) Gateway() *storage.Gateway {
	return storage.NewGateway(o.Dial)
}

// NewRootCommand creates the `bucket` command with default arguments.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	options := NewBucketOptions(cfg, iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `bucket` command and its nested
// children.
func NewRootCommandWithArgs(o *BucketOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "bucket [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Object storage gateway tool",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	pflags := cmd.PersistentFlags()
	conn := &o.Bucket.Connection
	pflags.StringVarP(&o.Bucket.Name, "bucket", "b", o.Bucket.Name, "Bucket name")
	pflags.StringVar(&o.Bucket.PublicURL, "public-url", o.Bucket.PublicURL, "Base URL objects are served from")
	pflags.StringVar(&conn.Provider, "provider", conn.Provider, "Storage provider (minio, s3 or gcs)")
	pflags.StringVar(&conn.Endpoint, "endpoint", conn.Endpoint, "Storage endpoint host[:port]")
	pflags.StringVar(&conn.AccessKey, "access-key", conn.AccessKey, "Access key")
	pflags.StringVar(&conn.SecretKey, "secret-key", conn.SecretKey, "Secret key")
	pflags.StringVar(&conn.Region, "region", conn.Region, "Bucket region")
	pflags.BoolVar(&conn.UseSSL, "use-ssl", conn.UseSSL, "Use TLS to reach the endpoint")
	pflags.StringVar(&conn.CredentialsFile, "credentials-file", conn.CredentialsFile, "Service account JSON file (gcs)")

	cmd.AddCommand(NewPutCommand(NewPutOptions(o)))
	cmd.AddCommand(NewGetCommand(NewGetOptions(o)))
	cmd.AddCommand(NewCatCommand(NewCatOptions(o)))
	cmd.AddCommand(NewExistsCommand(NewExistsOptions(o)))
	cmd.AddCommand(NewRmCommand(NewRmOptions(o)))
	cmd.AddCommand(NewSignCommand(NewSignOptions(o, false)))
	cmd.AddCommand(NewSignCommand(NewSignOptions(o, true)))
	cmd.AddCommand(NewInitCommand(NewInitOptions(o)))
	cmd.AddCommand(NewUploadCommand(NewUploadOptions(o.IOStreams)))
	cmd.AddCommand(NewTokenCommand(NewTokenOptions(o.JWTSecret, o.IOStreams)))

	// The global normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func (o *BucketOptions) validate() error {
	if o.Bucket.Name == "" {
		return fmt.Errorf("bucket name is required")
	}
	return nil
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
