package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jo-hoe/faceswap/internal/common"
	"github.com/jo-hoe/faceswap/internal/core"
	"github.com/jo-hoe/faceswap/internal/facemodel"
	"github.com/jo-hoe/faceswap/internal/session"
	"github.com/spf13/cobra"
)

type swapOptions struct {
	source     string
	target     string
	out        string
	confidence float32
}

func newSwapCmd(root *rootOptions) *cobra.Command {
	opts := &swapOptions{}

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Replace every face in the target image with the face from the source image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := opts.request()
			if err != nil {
				return err
			}

			// show download progress before the provider loads the models
			if _, err := facemodel.FetchAll(cmd.Context(), root.config.Models, nil, true); err != nil {
				return fmt.Errorf("failed to fetch models: %w", err)
			}

			provider := facemodel.NewProvider(root.config.Models)
			service := core.NewCoreServiceWith(root.config, provider, session.NewMemoryStore(0))
			defer func() {
				if err := service.Close(); err != nil {
					slog.Error("swap: failed to release models", "error", err)
				}
				if err := facemodel.ShutdownRuntime(); err != nil {
					slog.Error("swap: failed to shut down onnx runtime", "error", err)
				}
			}()

			return runSwap(cmd, service, request, opts.out)
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "image with the face to use (jpg, jpeg, png)")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "image whose faces are replaced (jpg, jpeg, png)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "face_swap_result.png", "output PNG file")
	cmd.Flags().Float32VarP(&opts.confidence, "confidence", "c", 0, "detection confidence in (0, 1] (default from config)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func (opts *swapOptions) request() (core.SwapRequest, error) {
	source, err := readUpload(opts.source)
	if err != nil {
		return core.SwapRequest{}, err
	}
	target, err := readUpload(opts.target)
	if err != nil {
		return core.SwapRequest{}, err
	}
	return core.SwapRequest{Source: source, Target: target, Confidence: opts.confidence}, nil
}

func runSwap(cmd *cobra.Command, service *core.CoreService, request core.SwapRequest, out string) error {
	result, err := service.SwapImages(request)
	if err != nil {
		_, message := common.UserFacing(err)
		return errors.New(message)
	}

	if err := os.WriteFile(out, result.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "swapped %d face(s), result written to %s\n", result.FacesSwapped, out)
	return nil
}

func readUpload(path string) (core.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return core.Upload{Filename: filepath.Base(path), Data: data}, nil
}
