package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/audio"
	"github.com/vango-go/vinyasa/pkg/live/capture"
	"github.com/vango-go/vinyasa/pkg/live/video"
	"github.com/vango-go/vinyasa/pkg/studio"
)

type poseFlags struct {
	sequence string
	index    int
	output   string
}

func (f *poseFlags) register(cmd *cobra.Command, defaultOutput string) {
	cmd.Flags().StringVarP(&f.sequence, "sequence", "s", "sequence.yaml", "Sequence file")
	cmd.Flags().IntVarP(&f.index, "index", "i", 0, "Pose index, starting at 0")
	cmd.Flags().StringVarP(&f.output, "output", "o", defaultOutput, "Output file")
}

func (f *poseFlags) pose() (types.Pose, error) {
	seq, err := readSequence(f.sequence)
	if err != nil {
		return types.Pose{}, err
	}
	pose, ok := seq.Pose(f.index)
	if !ok {
		return types.Pose{}, fmt.Errorf("--index %d is outside the sequence (0-%d)", f.index, len(seq.Poses)-1)
	}
	return pose, nil
}

func newPoseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pose",
		Short: "Generate media or feedback for one pose",
	}
	cmd.AddCommand(
		newPoseImageCmd(a),
		newPoseVideoCmd(a),
		newPoseAudioCmd(a),
		newPoseAnalyzeCmd(a),
	)
	return cmd
}

func newPoseImageCmd(a *app) *cobra.Command {
	var (
		f       poseFlags
		quality string
	)
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Render a reference illustration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := studio.ParseQuality(quality)
			if err != nil {
				return err
			}
			pose, err := f.pose()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			var img *studio.Image
			err = a.withBackend(ctx, func(b studio.Backend) error {
				var gerr error
				img, gerr = studio.NewMediaGenerator(b, a.studioOptions()...).GenerateImage(ctx, pose.EnglishName, pose.Modification, q)
				return gerr
			})
			if err != nil {
				return err
			}
			if img == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No image was generated. Try again.")
				return nil
			}
			return writeOutput(cmd.OutOrStdout(), f.output, img.Data)
		},
	}
	f.register(cmd, "pose.png")
	cmd.Flags().StringVar(&quality, "quality", "standard", "standard or high")
	return cmd
}

func newPoseVideoCmd(a *app) *cobra.Command {
	var (
		f      poseFlags
		aspect string
	)
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Generate a short demonstration clip",
		Long:  "Generate a short demonstration clip. Video generation runs for a few minutes; progress is logged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pose, err := f.pose()
			if err != nil {
				return err
			}
			// Video operations outlive the normal request timeout.
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute+a.cfg.RequestTimeout)
			defer cancel()

			var clip *studio.Video
			err = a.withBackend(ctx, func(b studio.Backend) error {
				gen := studio.NewMediaGenerator(b, a.studioOptions()...)
				var gerr error
				clip, gerr = gen.GenerateVideo(ctx, pose.EnglishName, pose.Modification, aspect)
				if gerr != nil || clip == nil {
					return gerr
				}
				return gen.Fetch(ctx, clip)
			})
			if err != nil {
				return err
			}
			if clip == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No video was generated. Try again.")
				return nil
			}
			return writeOutput(cmd.OutOrStdout(), f.output, clip.Data)
		},
	}
	f.register(cmd, "pose.mp4")
	cmd.Flags().StringVar(&aspect, "aspect", "16:9", "16:9 or 9:16")
	return cmd
}

func newPoseAudioCmd(a *app) *cobra.Command {
	var (
		f    poseFlags
		text string
		play bool
	)
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Speak the pose instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pose, err := f.pose()
			if err != nil {
				return err
			}
			if text == "" {
				text = fmt.Sprintf("%s. %s", pose.EnglishName, pose.Instructions)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			var pcm []byte
			err = a.withBackend(ctx, func(b studio.Backend) error {
				var gerr error
				pcm, gerr = studio.NewMediaGenerator(b, a.studioOptions()...).GenerateAudio(ctx, text)
				return gerr
			})
			if err != nil {
				return err
			}
			if pcm == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No audio was generated. Try again.")
				return nil
			}
			if play {
				return playPCM(cmd.Context(), pcm)
			}
			file, err := os.Create(f.output)
			if err != nil {
				return err
			}
			if err := writeWAV(file, pcm, audio.OutputSampleRate); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f.output)
			return nil
		},
	}
	f.register(cmd, "pose.wav")
	cmd.Flags().StringVar(&text, "text", "", "Text to speak instead of the pose instructions")
	cmd.Flags().BoolVar(&play, "play", false, "Play through the speakers instead of writing a file")
	return cmd
}

func newPoseAnalyzeCmd(a *app) *cobra.Command {
	var (
		f     poseFlags
		image string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Get feedback on your form from a photo or the camera",
		Long: `Get feedback on your form. Pass --image with a JPEG, or leave it empty to
take one frame from the camera.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pose, err := f.pose()
			if err != nil {
				return err
			}
			var jpeg []byte
			if image != "" {
				jpeg, err = os.ReadFile(image)
			} else {
				jpeg, err = a.snapshot(cmd.Context())
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			var feedback string
			err = a.withBackend(ctx, func(b studio.Backend) error {
				var gerr error
				feedback, gerr = studio.NewMediaGenerator(b, a.studioOptions()...).AnalyzeForm(ctx, jpeg, pose.EnglishName, pose.Instructions, pose.Modification)
				return gerr
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), feedback)
			return nil
		},
	}
	f.register(cmd, "")
	cmd.Flags().StringVar(&image, "image", "", "JPEG of you in the pose")
	return cmd
}

// snapshot opens the camera, waits for one frame and encodes it as JPEG.
func (a *app) snapshot(ctx context.Context) ([]byte, error) {
	cam, err := capture.OpenCamera(ctx, a.cfg.Capture.Camera, a.logger)
	if err != nil {
		return nil, err
	}
	defer cam.Stop()

	surface := video.NewSurface()
	cam.Bind(surface)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for surface.Frames() == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return video.Compress(surface.Snapshot(), 85, a.cfg.Sampler.MaxWidth)
}

func playPCM(ctx context.Context, pcm []byte) error {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	speaker, err := audio.OpenSpeaker(audio.OutputSampleRate, func(uint64) { close(done) })
	if err != nil {
		return err
	}
	defer speaker.Close()
	if err := speaker.Resume(); err != nil {
		return err
	}
	if err := speaker.Play(1, audio.Buffer{Samples: samples, SampleRate: audio.OutputSampleRate}, speaker.Now()); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeOutput(out io.Writer, path string, data []byte) error {
	if len(data) == 0 {
		return errors.New("generated media is empty")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

// writeWAV wraps 16-bit mono PCM in a RIFF header.
func writeWAV(w io.Writer, pcm []byte, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	header := struct {
		RIFF          [4]byte
		Size          uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		Size:          uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        1,
		Channels:      channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
