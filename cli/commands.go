package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	apiUrl  string
	account string
	dryRun  bool
	timeout time.Duration
}

func (o *rootOptions) client(cmd *cobra.Command) *Client {
	return NewClient(o.apiUrl, o.account, o.dryRun, cmd.OutOrStdout(), o.timeout)
}

func NewRootCommand() *cobra.Command {
	options := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vesting-cli",
		Short:         "Manage token vesting schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&options.apiUrl, "api-url", "http://localhost:8000", "vesting service base url")
	flags.StringVar(&options.account, "account", "", "identity of the caller, sent as X-Account header")
	flags.BoolVar(&options.dryRun, "dry-run", false, "print requests instead of sending them")
	flags.DurationVar(&options.timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(
		newInitCommand(options),
		newClaimCommand(options),
		newRevokeCommand(options),
		newAddressCommand(),
		newAccountCommand(options),
		newListCommand(options),
		newCurrentCommand(options),
		newBalanceCommand(options),
		newDepositCommand(options),
	)
	return cmd
}

func newInitCommand(options *rootOptions) *cobra.Command {
	var (
		params        vesting.CreateParams
		start, end    string
		interval      int64
		notRevocable  bool
		cliffArgument uint
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a vesting schedule funded by the calling account",
		Example: `  vesting-cli init --account bob --beneficiary alice --asset QU --amount 1000 \
    --start 2025-01-01T00:00:00Z --end 2026-01-01T00:00:00Z --cliff 20 --interval 2592000 --name team`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if params.StartTime, err = parseTime(start); err != nil {
				return errors.Wrap(err, "start")
			}
			if params.EndTime, err = parseTime(end); err != nil {
				return errors.Wrap(err, "end")
			}
			if cliffArgument > 100 {
				return entities.ErrInvalidCliff
			}
			params.CliffPercentage = uint8(cliffArgument)
			if interval != 0 {
				params.PaymentInterval = &interval
			}
			params.Creator = options.account
			params.Revocable = !notRevocable

			response, err := options.client(cmd).CreateSchedule(cmd.Context(), params)
			return printResponse(cmd, response, err)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.Beneficiary, "beneficiary", "", "beneficiary identity")
	flags.StringVar(&params.Asset, "asset", "", "asset to vest")
	flags.Uint64Var(&params.TotalAmount, "amount", 0, "total amount to vest")
	flags.StringVar(&start, "start", "", "start time, ISO-8601")
	flags.StringVar(&end, "end", "", "end time, ISO-8601")
	flags.UintVar(&cliffArgument, "cliff", 0, "percentage released at the start")
	flags.Int64Var(&interval, "interval", 0, "payment interval in seconds, 0 for continuous release")
	flags.StringVar(&params.Name, "name", "", "schedule name")
	flags.BoolVar(&notRevocable, "irrevocable", false, "creator cannot revoke the schedule")
	for _, name := range []string{"beneficiary", "asset", "amount", "start", "end", "name"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newClaimCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <beneficiary/asset/name>",
		Short: "Claim everything vested so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := entities.ParseScheduleKey(args[0])
			if err != nil {
				return err
			}
			response, err := options.client(cmd).Claim(cmd.Context(), key)
			return printResponse(cmd, response, err)
		},
	}
}

func newRevokeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <beneficiary/asset/name>",
		Short: "Revoke a schedule and return the unclaimed amount to the creator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := entities.ParseScheduleKey(args[0])
			if err != nil {
				return err
			}
			response, err := options.client(cmd).Revoke(cmd.Context(), key)
			return printResponse(cmd, response, err)
		},
	}
}

func newAddressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address <beneficiary> <asset> <name>",
		Short: "Print the key identifying a schedule",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := entities.ScheduleKey{Beneficiary: args[0], Asset: args[1], Name: args[2]}
			if err := key.Validate(); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), key.String())
			return err
		},
	}
}

func newAccountCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account <beneficiary/asset/name>",
		Short: "Show a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := entities.ParseScheduleKey(args[0])
			if err != nil {
				return err
			}
			response, err := options.client(cmd).GetSchedule(cmd.Context(), key)
			return printResponse(cmd, response, err)
		},
	}
}

func newListCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <beneficiary>",
		Short: "List the schedules of a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := options.client(cmd).ListSchedules(cmd.Context(), args[0])
			return printResponse(cmd, response, err)
		},
	}
}

func newCurrentCommand(options *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "current <beneficiary/asset/name>",
		Short: "Show the currently claimable amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := entities.ParseScheduleKey(args[0])
			if err != nil {
				return err
			}
			var timestamp int64
			if at != "" {
				if timestamp, err = parseTime(at); err != nil {
					return errors.Wrap(err, "at")
				}
			}
			response, err := options.client(cmd).Estimate(cmd.Context(), key, timestamp)
			return printResponse(cmd, response, err)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "estimate at this ISO-8601 time instead of now")
	return cmd
}

func newBalanceCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account> <asset>",
		Short: "Show the balance of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := options.client(cmd).Balance(cmd.Context(), args[0], args[1])
			return printResponse(cmd, response, err)
		},
	}
}

func newDepositCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <asset> <amount>",
		Short: "Deposit into the calling account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return errors.Wrap(err, "parsing amount")
			}
			if options.account == "" {
				return errors.New("--account is required")
			}
			response, err := options.client(cmd).Deposit(cmd.Context(), options.account, args[0], amount)
			return printResponse(cmd, response, err)
		},
	}
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseTime accepts ISO-8601 date times, without a zone they are taken as UTC.
func parseTime(value string) (int64, error) {
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.Unix(), nil
		}
	}
	return 0, errors.Errorf("invalid time [%s], expected ISO-8601", value)
}

func printResponse[T any](cmd *cobra.Command, response *T, err error) error {
	if err != nil || response == nil {
		return err
	}
	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return errors.Wrap(err, "formatting response")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
