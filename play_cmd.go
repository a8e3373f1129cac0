package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/samplebank/internal/audio"
)

var playBufferSize int

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a sample through the system audio device",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := expandPath(args[0])
		if !isSampleFile(path) {
			return fmt.Errorf("%s is not a sample file", path)
		}

		bank, err := newBank()
		if err != nil {
			return err
		}
		defer bank.Close()

		s, err := bank.Open(path)
		if err != nil {
			return err
		}

		bufferSize := playBufferSize
		if bufferSize == 0 {
			bufferSize = viper.GetInt("play.buffer_size")
		}
		player, err := audio.NewPlayer(audio.PlayerConfig{
			SampleRate: s.SampleRate,
			Channels:   s.NumChannels,
			BitDepth:   16,
			BufferSize: bufferSize,
		})
		if err != nil {
			return fmt.Errorf("opening audio device: %w", err)
		}
		defer player.Close()

		log.Debug("playing sample", "path", path, "ms", s.LengthMSec())
		if err := player.Play(audio.NewStream(s)); err != nil {
			return fmt.Errorf("starting playback: %w", err)
		}

		for player.IsPlaying() {
			bank.RunPending(0)
			time.Sleep(50 * time.Millisecond)
		}
		return player.Stop()
	},
}

func init() {
	playCmd.Flags().IntVar(&playBufferSize, "buffer", 0, "device buffer in bytes (0 for the config default)")
	viper.SetDefault("play.buffer_size", 4096)
}
