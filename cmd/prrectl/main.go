// Command prrectl is PRRE's operator CLI: a thin cobra-based client
// for the prred daemon's HTTP API, plus a local "doctor" diagnostic
// that doesn't require the daemon to be running.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GhostKellz/zeke-sub004/internal/config"
)

const (
	cliName    = "prrectl"
	cliVersion = "0.1.0"
)

func main() {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "prrectl — operator CLI for the PRRE routing daemon",
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:8790", "prred daemon address")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(configShowCmd())
	rootCmd.AddCommand(statusCmd(&serverAddr))
	rootCmd.AddCommand(historyCmd(&serverAddr))
	rootCmd.AddCommand(completeCmd(&serverAddr))
	rootCmd.AddCommand(chatCmd(&serverAddr))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	}
}

// doctorCmd runs offline checks that don't need the daemon up.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "check local configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prrectl doctor v%s\n\n", cliVersion)

			path := config.HomeDir() + "/config.yaml"
			ok := true
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("  [ok] config file: %s\n", path)
			} else {
				fmt.Printf("  [!!] config file missing: %s (run prred once to bootstrap it)\n", path)
				ok = false
			}

			cfg, err := config.Load()
			if err != nil {
				fmt.Printf("  [!!] config did not parse: %v\n", err)
				ok = false
			} else if len(cfg.Providers) == 0 {
				fmt.Println("  [!!] no providers configured")
				ok = false
			} else {
				fmt.Printf("  [ok] %d provider(s) configured\n", len(cfg.Providers))
			}

			fmt.Println()
			if ok {
				fmt.Println("all checks passed")
			} else {
				fmt.Println("issues found, see above")
				os.Exit(1)
			}
		},
	}
}

// configShowCmd prints the fully-resolved config (defaults + file +
// env overrides already applied) as YAML, so an operator can diff what
// prred will actually run with against what's on disk in config.yaml.
func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config show",
		Short: "print the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func statusCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show per-provider health and breaker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr + "/v1/status")
		},
	}
}

func historyCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "show recent attempt history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr + "/v1/history")
		},
	}
}

func completeCmd(addr *string) *cobra.Command {
	var model, provider string
	cmd := &cobra.Command{
		Use:   "complete [message]",
		Short: "send a non-streaming completion request",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				return fmt.Errorf("usage: %s complete <message>", cliName)
			}
			body, err := json.Marshal(requestBody(model, provider, prompt))
			if err != nil {
				return err
			}
			resp, err := http.Post(*addr+"/v1/complete", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printJSON(resp.Body)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "pin a specific provider")
	return cmd
}

func chatCmd(addr *string) *cobra.Command {
	var model, provider string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "send a streaming chat request and print tokens as they arrive",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				return fmt.Errorf("usage: %s chat <message>", cliName)
			}
			body, err := json.Marshal(requestBody(model, provider, prompt))
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 0}
			req, err := http.NewRequest(http.MethodPost, *addr+"/v1/chat", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return streamSSE(resp.Body)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "pin a specific provider")
	return cmd
}

func requestBody(model, provider, prompt string) map[string]any {
	return map[string]any{
		"model":    model,
		"provider": provider,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
}

func getAndPrint(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printJSON(resp.Body)
}

func printJSON(r io.Reader) error {
	var v any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// streamSSE reads "data: {...}" lines and prints each chunk's delta
// content as it arrives, matching the teacher's preference for a
// direct, unbuffered terminal experience over interactive tools.
func streamSSE(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	start := time.Now()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", chunk.Error.Message)
			continue
		}
		for _, c := range chunk.Choices {
			fmt.Print(c.Delta.Content)
		}
	}
	fmt.Printf("\n\n(%.1fs)\n", time.Since(start).Seconds())
	return scanner.Err()
}
