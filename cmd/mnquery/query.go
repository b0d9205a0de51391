package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nel349/midnight-ledger-reader/ledger"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

var readCmd = &cobra.Command{
	Use:   "read <address> [field]",
	Short: "Read a contract's ledger state or one field",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRead,
}

var memberCmd = &cobra.Command{
	Use:   "member <address> <field> <key>",
	Short: "Check key membership in a collection field",
	Args:  cobra.ExactArgs(3),
	RunE:  runMember,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <address> <field> <key>",
	Short: "Look a key up in a collection field",
	Args:  cobra.ExactArgs(3),
	RunE:  runLookup,
}

var callCmd = &cobra.Command{
	Use:   "call <address> <function> [hex-arg...]",
	Short: "Call a contract-declared pure function",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCall,
}

// withService runs fn against a service built from the configuration.
func withService(fn func(ctx context.Context, svc *ledger.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := createLogger(cfg.Logging)

	svc, cleanup, err := buildService(cfg, log, metrics.NewNopMetrics(), nil)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(context.Background(), svc)
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRead(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *ledger.Service) error {
		addr := types.ContractAddress(args[0])

		if len(args) == 2 {
			v, err := svc.ReadField(ctx, addr, args[1])
			if err != nil {
				return err
			}
			return printJSON(v.Encode())
		}

		st, err := svc.ReadLedgerState(ctx, addr)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("no contract at %s", addr)
		}

		fields := make(map[string]state.Encoded, st.Record.Len())
		for _, name := range st.Record.Fields() {
			v, _ := st.Record.Get(name)
			fields[name] = v.Encode()
		}
		return printJSON(map[string]interface{}{
			"fields":      fields,
			"fieldOrder":  st.Record.Fields(),
			"blockHeight": st.BlockHeight,
			"timestamp":   st.Timestamp,
		})
	})
}

func runMember(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *ledger.Service) error {
		key, err := state.ParseKey(args[2])
		if err != nil {
			return err
		}
		member, err := svc.CollectionHasMember(ctx, types.ContractAddress(args[0]), args[1], key.Bytes())
		if err != nil {
			return err
		}
		return printJSON(map[string]bool{"member": member})
	})
}

func runLookup(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *ledger.Service) error {
		key, err := state.ParseKey(args[2])
		if err != nil {
			return err
		}
		v, found, err := svc.CollectionLookup(ctx, types.ContractAddress(args[0]), args[1], key.Bytes())
		if err != nil {
			return err
		}
		if !found {
			return printJSON(map[string]bool{"found": false})
		}
		return printJSON(map[string]interface{}{"found": true, "value": v.Encode()})
	})
}

func runCall(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *ledger.Service) error {
		fnArgs := make([]state.Value, 0, len(args)-2)
		for _, raw := range args[2:] {
			payload, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
			if err != nil {
				// Not hex: pass the literal bytes.
				payload = []byte(raw)
			}
			fnArgs = append(fnArgs, state.NewCell(payload))
		}

		v, found, err := svc.CallPureFunction(ctx, types.ContractAddress(args[0]), args[1], fnArgs)
		if err != nil {
			return err
		}
		if !found {
			return printJSON(map[string]bool{"found": false})
		}
		return printJSON(map[string]interface{}{"found": true, "value": v.Encode()})
	})
}
