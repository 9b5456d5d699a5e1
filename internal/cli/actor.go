package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Actor & Dispute CLI ────────────────────────────────────────────────────
// Operator commands over the local database. Identity is taken from --as
// and --role; the CLI trusts the operator the way the API trusts its
// gateway.

func init() {
	rootCmd.AddCommand(actorCmd)
	actorCmd.AddCommand(actorRegisterCmd)
	actorCmd.AddCommand(actorShowCmd)
	actorCmd.AddCommand(actorHandleCmd)
	actorCmd.AddCommand(actorLedgerCmd)

	rootCmd.AddCommand(disputesCmd)
	disputesCmd.AddCommand(disputesListCmd)
	disputesCmd.AddCommand(disputesResolveCmd)

	actorRegisterCmd.Flags().String("handle", "", "Display handle")
	actorLedgerCmd.Flags().String("account", "", "Account to list (admins only; defaults to the actor)")
	actorLedgerCmd.Flags().Int("limit", 20, "Maximum entries")
	disputesListCmd.Flags().Int("limit", 50, "Maximum disputes")
}

var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "Manage actors and balances",
}

// ─── actor register ─────────────────────────────────────────────────────────

var actorRegisterCmd = &cobra.Command{
	Use:   "register ACTOR_ID",
	Short: "Register an actor and pay the signup grant",
	Args:  cobra.ExactArgs(1),
	RunE:  runActorRegister,
}

func runActorRegister(cmd *cobra.Command, args []string) error {
	role, err := domain.ParseRole(actingRole)
	if err != nil {
		return err
	}
	handle, _ := cmd.Flags().GetString("handle")

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	actor, err := d.Engine.RegisterActor(cmd.Context(), args[0], role, handle)
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), actor, func(w io.Writer) {
		fmt.Fprintf(w, "✅ Registered %s (%s) with %d credits\n", actor.ID, actor.Role, actor.Balance)
	})
}

// ─── actor show ─────────────────────────────────────────────────────────────

var actorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the acting actor's profile and balance",
	RunE:  runActorShow,
}

func runActorShow(cmd *cobra.Command, args []string) error {
	c, err := caller()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	actor, err := d.Engine.Actor(cmd.Context(), c)
	if err != nil {
		return err
	}
	pending, err := d.Engine.PendingCount(cmd.Context(), c)
	if err != nil {
		return err
	}
	out := struct {
		domain.Actor `yaml:",inline"`
		Pending      int `json:"pending_reviews" yaml:"pending_reviews"`
	}{actor, pending}
	return printOutput(cmd.OutOrStdout(), out, func(w io.Writer) {
		handle := actor.Handle
		if handle == "" {
			handle = "(not set)"
		}
		fmt.Fprintf(w, "Actor:    %s\n", actor.ID)
		fmt.Fprintf(w, "Role:     %s\n", actor.Role)
		fmt.Fprintf(w, "Handle:   %s\n", handle)
		fmt.Fprintf(w, "Balance:  %d credits\n", actor.Balance)
		fmt.Fprintf(w, "Pending:  %d submission(s) to review\n", pending)
	})
}

// ─── actor handle ───────────────────────────────────────────────────────────

var actorHandleCmd = &cobra.Command{
	Use:   "handle HANDLE",
	Short: "Set the acting actor's display handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runActorHandle,
}

func runActorHandle(cmd *cobra.Command, args []string) error {
	c, err := caller()
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	actor, err := d.Engine.SetHandle(cmd.Context(), c, args[0])
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), actor, func(w io.Writer) {
		fmt.Fprintf(w, "✅ Handle for %s set to @%s\n", actor.ID, actor.Handle)
	})
}

// ─── actor ledger ───────────────────────────────────────────────────────────

var actorLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List credit ledger entries, newest first",
	RunE:  runActorLedger,
}

func runActorLedger(cmd *cobra.Command, args []string) error {
	c, err := caller()
	if err != nil {
		return err
	}
	account, _ := cmd.Flags().GetString("account")
	limit, _ := cmd.Flags().GetInt("limit")

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.Engine.LedgerEntries(cmd.Context(), c, account, limit)
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No ledger entries.")
			return
		}
		for _, e := range entries {
			sign := "+"
			if e.EntryType == domain.EntryDebit {
				sign = "-"
			}
			fmt.Fprintf(w, "%s  %-15s %s%-5d balance=%d  %s\n",
				e.Timestamp.Format("2006-01-02 15:04"), e.Type, sign, e.Amount, e.Balance, e.Description)
		}
	})
}

// ─── disputes ───────────────────────────────────────────────────────────────

var disputesCmd = &cobra.Command{
	Use:   "disputes",
	Short: "Review disputed submissions (admins)",
}

var disputesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open disputes, oldest first",
	RunE:  runDisputesList,
}

func runDisputesList(cmd *cobra.Command, args []string) error {
	c, err := caller()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	queue, err := d.Engine.DisputeQueue(cmd.Context(), c, limit)
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), queue, func(w io.Writer) {
		if len(queue) == 0 {
			fmt.Fprintln(w, "No open disputes.")
			return
		}
		fmt.Fprintf(w, "Open disputes (%d):\n", len(queue))
		for _, v := range queue {
			fmt.Fprintf(w, "  • %s  @%s on %s (reward %d)\n", v.ID, v.SubmitterHandle, v.PostURL, v.Reward)
			fmt.Fprintf(w, "      rejected: %s\n", v.RejectionReason)
			if v.DisputeMessage != "" {
				fmt.Fprintf(w, "      appeal:   %s\n", v.DisputeMessage)
			}
		}
	})
}

var disputesResolveCmd = &cobra.Command{
	Use:   "resolve SUBMISSION_ID overturn|uphold",
	Short: "Rule on a disputed submission",
	Args:  cobra.ExactArgs(2),
	RunE:  runDisputesResolve,
}

func runDisputesResolve(cmd *cobra.Command, args []string) error {
	c, err := caller()
	if err != nil {
		return err
	}
	decision, err := domain.ParseDisputeDecision(args[1])
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.ResolveDispute(cmd.Context(), c, args[0], decision)
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), res, func(w io.Writer) {
		if !res.Applied {
			fmt.Fprintf(w, "Dispute on %s was already resolved (%s); nothing changed.\n",
				res.Submission.ID, res.Submission.Status)
			return
		}
		fmt.Fprintf(w, "✅ %s → %s\n", res.Submission.ID, strings.ToLower(string(res.Submission.Status)))
	})
}
