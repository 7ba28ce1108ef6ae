package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagAddr  string
	flagToken string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pricingctl",
		Short: "Admin CLI for the pricing service",
	}
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", envOr("PRICING_CTL_ADDR", "http://localhost:8070"), "pricing service base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("PRICING_CTL_TOKEN"), "admin bearer token")

	rootCmd.AddCommand(
		rulesCmd(),
		versionsCmd(),
		quoteCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect pricing rules",
	}
	var appliesTo, destination string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pricing rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if appliesTo != "" {
				query.Set("applies_to", appliesTo)
			}
			if destination != "" {
				query.Set("destination", destination)
			}
			path := "/v1/rules"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}
			return call(http.MethodGet, path, nil)
		},
	}
	list.Flags().StringVar(&appliesTo, "applies-to", "", "filter by category")
	list.Flags().StringVar(&destination, "destination", "", "filter by destination")
	cmd.AddCommand(list)
	return cmd
}

func versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage pricing versions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/versions", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a draft version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/v1/versions", map[string]interface{}{})
		},
	})
	var confirm bool
	activate := &cobra.Command{
		Use:   "activate <version-id>",
		Short: "Activate a version (archives the previous active one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/v1/versions/"+args[0]+"/activate",
				map[string]interface{}{"confirm": confirm})
		},
	}
	activate.Flags().BoolVar(&confirm, "confirm", false, "confirm the activation")
	cmd.AddCommand(activate)
	return cmd
}

func quoteCmd() *cobra.Command {
	var (
		baseCost    float64
		destination string
		channel     string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price an ad-hoc package quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/v1/quote", map[string]interface{}{
				"baseCost":    baseCost,
				"destination": destination,
				"channel":     channel,
			})
		},
	}
	cmd.Flags().Float64Var(&baseCost, "base-cost", 0, "base cost to price")
	cmd.Flags().StringVar(&destination, "destination", "", "destination context")
	cmd.Flags().StringVar(&channel, "channel", "b2c", "sales channel (b2c or agent)")
	return cmd
}

func call(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, flagAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if flagToken != "" {
		req.Header.Set("Authorization", "Bearer "+flagToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	fmt.Println(pretty.String())
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
