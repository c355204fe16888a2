// Package cmd implements the DarkRenderer CLI surface (spec.md §2): edge and cloud
// session controller processes, a thin client that submits a scene, and shutdown
// commands — built with cobra and viper-backed configuration in the teacher's style
// (cmd/root.go in the original pack). The flag surface itself is a thin contract over
// internal/edge, internal/cloudsrv, and internal/config; it does no domain work.
package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adriannosampaio/darkrenderer/internal/cloudsrv"
	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/direrr"
	"github.com/adriannosampaio/darkrenderer/internal/edge"
	"github.com/adriannosampaio/darkrenderer/internal/log"
	"github.com/adriannosampaio/darkrenderer/internal/transport"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "darkrenderer",
	Short: "DarkRenderer distributed ray-triangle intersection service",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the JSON configuration file")

	clientCmd.Flags().IntVar(&flagTaskSize, "task-size", 0, "override processing.task_size for this session")
	clientCmd.Flags().IntVar(&flagTaskChunkSize, "task-chunk-size", 0, "override processing.cloud.task_chunk_size for this session")
	clientCmd.Flags().BoolVar(&flagMultiqueue, "multiqueue", false, "override processing.multiqueue for this session")
	clientCmd.Flags().BoolVar(&flagTaskStealing, "task-stealing", false, "override processing.task_steal for this session")
	clientCmd.Flags().BoolVar(&flagCloudStreaming, "cloud-streaming", false, "enable processing.cloud.mode_streaming for this session (false leaves the edge's setting unchanged)")

	rootCmd.AddCommand(edgeCmd, cloudCmd, clientCmd, shutdownEdgeCmd, shutdownAllCmd)
}

// Execute runs the CLI; main.go's only job is to call this and report the error.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfigAndLogger() (*config.GlobalConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Run the edge session controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigAndLogger()
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", cfg.Edge.Addr())
		if err != nil {
			return fmt.Errorf("cmd: binding edge listener: %w", err)
		}
		defer ln.Close()

		mode, err := edge.New(cfg, ln).Run()
		if err != nil {
			return err
		}
		if mode == edge.ShutdownAll {
			os.Exit(0)
		}
		return nil
	},
}

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Run the cloud session controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigAndLogger()
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", cfg.Cloud.Addr())
		if err != nil {
			return fmt.Errorf("cmd: binding cloud listener: %w", err)
		}
		defer ln.Close()

		_, err = cloudsrv.New(cfg, ln).Run()
		return err
	},
}

var shutdownEdgeCmd = &cobra.Command{
	Use:   "shutdown-edge",
	Short: "Tell a running edge process to stop accepting new sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControlFrame("EXIT_EDGE")
	},
}

var shutdownAllCmd = &cobra.Command{
	Use:   "shutdown-all",
	Short: "Tell a running edge process to shut down entirely",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControlFrame("EXIT_ALL")
	},
}

func sendControlFrame(frame string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	raw, err := net.Dial("tcp", cfg.Edge.Addr())
	if err != nil {
		return fmt.Errorf("cmd: dialing edge: %w", err)
	}
	defer raw.Close()

	return transport.New(raw).Send(frame, cfg.Networking.Compression)
}

var (
	flagTaskSize       int
	flagTaskChunkSize  int
	flagMultiqueue     bool
	flagTaskStealing   bool
	flagCloudStreaming bool
)

var clientCmd = &cobra.Command{
	Use:   "client <scene-file>",
	Short: "Connect to an edge process and submit a scene for rendering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		raw, err := net.Dial("tcp", cfg.Edge.Addr())
		if err != nil {
			return fmt.Errorf("cmd: dialing edge: %w", err)
		}
		defer raw.Close()
		conn := transport.New(raw)

		if overrides := buildConfigFrame(cmd); overrides != "" {
			if err := conn.Send(overrides, cfg.Networking.Compression); err != nil {
				return fmt.Errorf("cmd: sending CONFIG: %w", err)
			}
		}

		sceneBytes, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cmd: reading scene file: %w", err)
		}
		if err := conn.Send(string(sceneBytes), cfg.Networking.Compression); err != nil {
			return fmt.Errorf("cmd: sending scene: %w", err)
		}

		for {
			frame, err := conn.Recv(cfg.Networking.Compression)
			if err != nil {
				if errors.Is(err, direrr.ErrPeerClosed) {
					return nil
				}
				return err
			}
			fmt.Println(frame)
		}
	},
}

func buildConfigFrame(cmd *cobra.Command) string {
	var parts []string
	if cmd.Flags().Changed("task-size") {
		parts = append(parts, "TSIZE", strconv.Itoa(flagTaskSize))
	}
	if cmd.Flags().Changed("task-chunk-size") {
		parts = append(parts, "TCHUNKSIZE", strconv.Itoa(flagTaskChunkSize))
	}
	if cmd.Flags().Changed("multiqueue") {
		parts = append(parts, "MULTIQUEUE", boolFlag(flagMultiqueue))
	}
	if cmd.Flags().Changed("task-stealing") {
		parts = append(parts, "STEAL", boolFlag(flagTaskStealing))
	}
	if cmd.Flags().Changed("cloud-streaming") && flagCloudStreaming {
		parts = append(parts, "STREAM")
	}
	if len(parts) == 0 {
		return ""
	}
	return "CONFIG " + strings.Join(parts, " ")
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
