// Command sensorfeed streams CSV records from a file or stdin to a
// sensorserver and finishes the session with END.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cyberinferno/sensorstream/logger"
	"github.com/cyberinferno/sensorstream/sensorclient"
)

var (
	address  string
	filePath string
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "sensorfeed",
	Short:        "send CSV sensor records to a sensorserver",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := cmd.InOrStdin()
		if filePath != "" && filePath != "-" {
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("open %s: %w", filePath, err)
			}
			defer f.Close()
			in = f
		}

		log := logger.NewConsoleLogger("sensorfeed", zerolog.InfoLevel)
		defer log.Close()

		client := sensorclient.New(sensorclient.DefaultConfig(address))
		return feed(client, in, interval, log)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&address, "addr", "a", "127.0.0.1:8888", "sensorserver address")
	flags.StringVarP(&filePath, "file", "f", "-", "CSV file to send, - for stdin")
	flags.DurationVar(&interval, "interval", 0, "delay between records")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// feed connects client, sends every non-empty line of in and then END.
func feed(client *sensorclient.Client, in io.Reader, interval time.Duration, log logger.Logger) error {
	client.OnConnectionState(func(event sensorclient.ConnectionStateEvent) {
		log.Debug("connection state changed", logger.Field{Key: "state", Value: event.State.String()})
	})

	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	sent := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || line == sensorclient.EndOfStream {
			continue
		}

		if err := client.SendLine(line); err != nil {
			return err
		}
		sent++

		if interval > 0 {
			time.Sleep(interval)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if err := client.End(); err != nil {
		return err
	}

	log.Info("stream sent", logger.Field{Key: "records", Value: sent})
	return nil
}
