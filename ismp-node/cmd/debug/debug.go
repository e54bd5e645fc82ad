// Package debug implements various sub-commands useful for debugging.
package debug

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var (
	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "debug utilities",
	}

	hashRequestCmd = &cobra.Command{
		Use:   "hash-request <request.json>",
		Short: "compute the commitment of a JSON encoded request",
		Args:  cobra.ExactArgs(1),
		RunE:  doHashRequest,
	}

	hashResponseCmd = &cobra.Command{
		Use:   "hash-response <response.json>",
		Short: "compute the commitment of a JSON encoded response",
		Args:  cobra.ExactArgs(1),
		RunE:  doHashResponse,
	}
)

// RequestCommitment decodes a JSON encoded request and returns its
// commitment.
func RequestCommitment(raw []byte) (hash.Hash, error) {
	var req api.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return hash.Hash{}, fmt.Errorf("malformed request: %w", err)
	}
	if err := req.ValidateBasic(); err != nil {
		return hash.Hash{}, err
	}
	return api.HashRequest(&req), nil
}

// ResponseCommitment decodes a JSON encoded response and returns its
// commitment.
func ResponseCommitment(raw []byte) (hash.Hash, error) {
	var res api.Response
	if err := json.Unmarshal(raw, &res); err != nil {
		return hash.Hash{}, fmt.Errorf("malformed response: %w", err)
	}
	if err := res.ValidateBasic(); err != nil {
		return hash.Hash{}, err
	}
	return api.HashResponse(&res), nil
}

func doHash(path string, fn func([]byte) (hash.Hash, error)) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	h, err := fn(raw)
	if err != nil {
		return err
	}
	fmt.Println(h.Hex())
	return nil
}

func doHashRequest(cmd *cobra.Command, args []string) error {
	return doHash(args[0], RequestCommitment)
}

func doHashResponse(cmd *cobra.Command, args []string) error {
	return doHash(args[0], ResponseCommitment)
}

// Register registers the debug sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	debugCmd.AddCommand(hashRequestCmd)
	debugCmd.AddCommand(hashResponseCmd)
	parentCmd.AddCommand(debugCmd)
}
