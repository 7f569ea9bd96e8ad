package limit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mdouchement/rfboard"
	"github.com/spf13/cobra"
)

func Command(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "set-limit AMPERES",
		Short: "Set the load current limit (clamped to the safety ceiling)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			requested, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid limit: %w", err)
			}

			payload, err := json.Marshal(rfboard.LimitRequest{Limit: requested})
			if err != nil {
				return err
			}

			resp, err := client.Post("http://unix/limit", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
				return fmt.Errorf("bad status: %s body=%q", resp.Status, string(b))
			}

			var res rfboard.LimitResponse
			if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
				return err
			}

			if res.Applied != res.Requested {
				fmt.Printf("Requested %.3fA, applied %.3fA (safety ceiling)\n", res.Requested, res.Applied)
				return nil
			}
			fmt.Printf("Applied %.3fA\n", res.Applied)
			return nil
		},
	}
}
