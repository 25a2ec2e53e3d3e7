package bandit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/dBandit/lib/bandit"
	"github.com/spf13/cobra"
)

var (
	addCmd = &cobra.Command{
		Use:   "add [id] [field=value...]",
		Short: "Adds an arm (a random id is generated if none is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := bandit.NewArmID()
			if len(args) > 0 && !strings.Contains(args[0], "=") {
				id, args = args[0], args[1:]
			}
			overrides, err := parseAssignments(args)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()
			arm, err := current.AddArm(ctx, id, overrides)
			if err != nil {
				return err
			}
			return printSnapshot(cmd, arm)
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [id]",
		Short: "Removes an arm and deletes its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			if err := current.RemoveArm(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed arm %s\n", args[0])
			return nil
		},
	}
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "Lists the ids of all arms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			ids, err := current.ArmIDs(ctx)
			if err != nil {
				return err
			}
			slices.Sort(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of arms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			n, err := current.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id] [field]",
		Short: "Prints one field or all fields of an arm",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			arm, err := current.Arm(ctx, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return printSnapshot(cmd, arm)
			}
			v, err := arm.Get(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [id] [field] [value]",
		Short: "Sets a field of an arm",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1], args[2])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			arm, err := current.Arm(ctx, args[0])
			if err != nil {
				return err
			}
			if err := arm.Set(ctx, args[1], v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s=%v\n", args[0], args[1], v)
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [id] [field] [delta]",
		Short: "Atomically increments a numeric field and prints the new value",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := "1"
			if len(args) == 3 {
				delta = args[2]
			}
			d, err := parseValue(args[1], delta)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()
			arm, err := current.Arm(ctx, args[0])
			if err != nil {
				return err
			}

			var result any
			switch d := d.(type) {
			case int64:
				result, err = arm.Increment(ctx, args[1], d)
			case float64:
				result, err = arm.IncrementFloat(ctx, args[1], d)
			default:
				err = fmt.Errorf("%w: field %q", bandit.ErrNotNumeric, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	fieldsCmd = &cobra.Command{
		Use:   "fields [field] [id...]",
		Short: "Reads one field of many arms in a single round trip (all arms if no id is given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			ids := args[1:]
			if len(ids) == 0 {
				var err error
				if ids, err = current.ArmIDs(ctx); err != nil {
					return err
				}
				slices.Sort(ids)
			}
			values, err := current.GetFieldFromArms(ctx, ids, args[0])
			if err != nil {
				return err
			}
			for i, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", id, values[i])
			}
			return nil
		},
	}
	refCmd = &cobra.Command{
		Use:   "ref",
		Short: "Prints the transfer reference of the bandit as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(current.Ref(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseValue converts a command line value to the kind of field
func parseValue(field, raw string) (any, error) {
	f, ok := current.Schema().Field(field)
	if !ok {
		return nil, &bandit.UnknownFieldError{Schema: current.Schema().Name(), Field: field}
	}
	return f.Parse(raw)
}

// parseAssignments parses field=value arguments
func parseAssignments(args []string) (bandit.Fields, error) {
	fields := bandit.Fields{}
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q (expected field=value)", arg)
		}
		v, err := parseValue(field, raw)
		if err != nil {
			return nil, err
		}
		fields[field] = v
	}
	return fields, nil
}

func printSnapshot(cmd *cobra.Command, arm *bandit.Arm) error {
	ctx, cancel := commandContext()
	defer cancel()
	snap, err := arm.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
