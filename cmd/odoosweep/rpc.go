package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/odoo"
)

var (
	rpcFilter string
	rpcFields []string
	rpcLimit  int
	rpcOffset int
	rpcOrder  string
	rpcArgs   string
	rpcKwargs string
	rpcOut    string
)

// rpcCmd groups the single-operation commands
var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Run a single remote operation and print its result envelope",
	Long: `Run one operation against an instance. Results are printed as
{"success", "data", "error", "metadata"} JSON envelopes.

Filters use the wire format, e.g. --filter '[["name","like","Test%"]]'.`,
}

// envelope is satisfied by every odoo.Envelope instantiation.
type envelope interface {
	OK() bool
	Error() error
}

// withClient runs fn against an authenticated client and prints the envelope.
func withClient(cmd *cobra.Command, instance string, fn func(ctx context.Context, c *odoo.Client) envelope) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.registry.Has(instance) {
		return fmt.Errorf("unknown instance %q (configured: %v)", instance, a.registry.Names())
	}

	client, err := a.registry.Client(cmd.Context(), instance)
	if err != nil {
		return err
	}

	env := fn(cmd.Context(), client)
	if err := printJSON(cmd.OutOrStdout(), env); err != nil {
		return err
	}
	return env.Error()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid record id %q", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one record id is required")
	}
	return ids, nil
}

func parseObject(raw, what string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid %s JSON object: %w", what, err)
	}
	return out, nil
}

func searchOptions() odoo.Options {
	return odoo.Options{
		Fields: rpcFields,
		Limit:  rpcLimit,
		Offset: rpcOffset,
		Order:  rpcOrder,
	}
}

var rpcSearchCmd = &cobra.Command{
	Use:   "search <instance> <model>",
	Short: "Return ids of records matching --filter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pred, err := filter.ParseJSON([]byte(rpcFilter))
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Search(ctx, args[1], pred, searchOptions())
		})
	},
}

var rpcSearchReadCmd = &cobra.Command{
	Use:   "search-read <instance> <model>",
	Short: "Return records matching --filter with --fields",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pred, err := filter.ParseJSON([]byte(rpcFilter))
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.SearchRead(ctx, args[1], pred, searchOptions())
		})
	},
}

var rpcCountCmd = &cobra.Command{
	Use:   "count <instance> <model>",
	Short: "Count records matching --filter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pred, err := filter.ParseJSON([]byte(rpcFilter))
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Count(ctx, args[1], pred, nil)
		})
	},
}

var rpcReadCmd = &cobra.Command{
	Use:   "read <instance> <model> <id>...",
	Short: "Read records by id",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[2:])
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Read(ctx, args[1], ids, odoo.Options{Fields: rpcFields})
		})
	},
}

var rpcCreateCmd = &cobra.Command{
	Use:   "create <instance> <model> <values-json>",
	Short: "Create a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseObject(args[2], "values")
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Create(ctx, args[1], values, nil)
		})
	},
}

var rpcWriteCmd = &cobra.Command{
	Use:   "write <instance> <model> <values-json> <id>...",
	Short: "Update records",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseObject(args[2], "values")
		if err != nil {
			return err
		}
		ids, err := parseIDs(args[3:])
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Update(ctx, args[1], ids, values, nil)
		})
	},
}

var rpcUnlinkCmd = &cobra.Command{
	Use:   "unlink <instance> <model> <id>...",
	Short: "Delete records",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[2:])
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Delete(ctx, args[1], ids, nil)
		})
	},
}

var rpcCallCmd = &cobra.Command{
	Use:   "call <instance> <model> <method>",
	Short: "Call an arbitrary model method with --args and --kwargs",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var callArgs []any
		if rpcArgs != "" {
			if err := json.Unmarshal([]byte(rpcArgs), &callArgs); err != nil {
				return fmt.Errorf("invalid --args JSON array: %w", err)
			}
		}
		kwargs, err := parseObject(rpcKwargs, "--kwargs")
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.Execute(ctx, args[1], args[2], callArgs, kwargs)
		})
	},
}

var rpcActionCmd = &cobra.Command{
	Use:   "action <instance> <model> <action> <id>...",
	Short: "Run a button or workflow action on records",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[3:])
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.ExecuteAction(ctx, args[1], args[2], ids, nil)
		})
	},
}

var rpcFieldsCmd = &cobra.Command{
	Use:   "fields <instance> <model>",
	Short: "Show model metadata and field definitions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			return c.ModelMetadata(ctx, args[1])
		})
	},
}

var rpcReportCmd = &cobra.Command{
	Use:   "report <instance> <report-name> <id>...",
	Short: "Render a report; with --out the decoded document is written to a file",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[2:])
		if err != nil {
			return err
		}
		return withClient(cmd, args[0], func(ctx context.Context, c *odoo.Client) envelope {
			env := c.RenderReport(ctx, args[1], ids, nil, nil)
			if !env.OK() || rpcOut == "" {
				return env
			}
			data, err := base64.StdEncoding.DecodeString(env.Data)
			if err == nil {
				err = os.WriteFile(rpcOut, data, 0o644)
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to write %s: %v\n", rpcOut, err)
				return env
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), rpcOut)
			return env
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{rpcSearchCmd, rpcSearchReadCmd, rpcCountCmd} {
		c.Flags().StringVarP(&rpcFilter, "filter", "f", "", "filter in wire format (JSON)")
	}
	for _, c := range []*cobra.Command{rpcSearchCmd, rpcSearchReadCmd} {
		c.Flags().IntVar(&rpcLimit, "limit", 0, "maximum number of records")
		c.Flags().IntVar(&rpcOffset, "offset", 0, "records to skip")
		c.Flags().StringVar(&rpcOrder, "order", "", "sort order, e.g. \"id desc\"")
	}
	for _, c := range []*cobra.Command{rpcSearchReadCmd, rpcReadCmd} {
		c.Flags().StringSliceVar(&rpcFields, "fields", nil, "fields to return")
	}
	rpcCallCmd.Flags().StringVar(&rpcArgs, "args", "", "positional arguments (JSON array)")
	rpcCallCmd.Flags().StringVar(&rpcKwargs, "kwargs", "", "keyword arguments (JSON object)")
	rpcReportCmd.Flags().StringVarP(&rpcOut, "out", "o", "", "write the decoded document to this file")

	rpcCmd.AddCommand(rpcSearchCmd, rpcSearchReadCmd, rpcCountCmd, rpcReadCmd, rpcCreateCmd,
		rpcWriteCmd, rpcUnlinkCmd, rpcCallCmd, rpcActionCmd, rpcFieldsCmd, rpcReportCmd)
}
