package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"media-resolver-go/internal/app"
	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/proxy"
	"media-resolver-go/pkg/sniff"
	"media-resolver-go/pkg/unpacker"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <embed-url>",
		Short: "Resolve one embed URL and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := opts.load(cmd)
			reg := app.NewExtractorRegistry(cfg, httpclient.New(cfg, log), log)

			ctx, cancel := context.WithTimeout(cmd.Context(), 4*cfg.FetchTimeout)
			defer cancel()

			result := reg.ExtractVideo(ctx, args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}
}

func newSniffCmd() *cobra.Command {
	var declared, target string

	cmd := &cobra.Command{
		Use:   "sniff <file>",
		Short: "Classify a media file by its leading bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			head, err := readHead(args[0], 4096)
			if err != nil {
				return err
			}

			format := sniff.Detect(head)
			res := proxy.ResolveContentType(proxy.Signals{
				Sniffed:  format,
				Declared: declared,
				URL:      target,
				Head:     head,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "format:       %s\ncontent-type: %s\nreason:       %s\n",
				format, res.ContentType, res.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&declared, "declared", "", "Declared Content-Type to weigh in")
	cmd.Flags().StringVar(&target, "url", "", "Source URL to weigh in")
	return cmd
}

func newUnpackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <file|->",
		Short: "Decode a packed eval(function(p,a,c,k,e,d)) script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readAll(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			packed := unpacker.Find(string(src))
			if packed == "" {
				return errors.New("no packed script found")
			}
			decoded, err := unpacker.Unpack(packed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), decoded)
			return nil
		},
	}
}

func readHead(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, n))
}

func readAll(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
