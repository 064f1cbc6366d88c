package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/lnd"
	"github.com/lightningmodel/lnchat/internal/payment"
	"github.com/lightningmodel/lnchat/internal/tui/components"
)

var (
	flagCopy bool
	flagNoQR bool
)

var buyCmd = &cobra.Command{
	Use:   "buy <token|request> <limit>",
	Short: "Pay an invoice and open a chat session",
	Long: "Creates a Lightning invoice for the limit, waits for it to be paid and\n" +
		"then opens a session capped at that limit.",
	Args: cobra.ExactArgs(2),
	RunE: runBuy,
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Show the Lightning node invoices are issued from",
	Args:  cobra.NoArgs,
	RunE:  runNode,
}

func init() {
	buyCmd.Flags().BoolVar(&flagCopy, "copy", false, "Copy the invoice to the clipboard")
	buyCmd.Flags().BoolVar(&flagNoQR, "no-qr", false, "Do not print the QR code")
	rootCmd.AddCommand(buyCmd, nodeCmd)
}

func runBuy(_ *cobra.Command, args []string) error {
	plan, limit, err := parsePurchase(args)
	if err != nil {
		return err
	}
	d, err := openDeps(false)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if d.client.IsSessionActive() {
		return errors.New("a session is already open; end it first with: lnchat session end")
	}
	if err := d.chat.SelectPlan(plan); err != nil {
		return err
	}
	if err := d.chat.BeginPayment(limit); err != nil {
		return err
	}

	inv := d.payment.CreatePaymentInvoice(ctx, plan, limit)
	if inv == nil {
		return d.payment.State().Err
	}

	fmt.Println()
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Amount", Value: cli.RenderSats(inv.AmountSats) + "  " + cli.FormatSatsAsBTC(inv.AmountSats)},
		{Key: "Memo", Value: inv.Memo},
		{Key: "Expires", Value: inv.ExpiresAt().Format("15:04:05")},
	}))
	fmt.Println()
	if !flagNoQR {
		fmt.Println(components.QRCode(inv.PaymentRequest))
		fmt.Println()
	}
	fmt.Println(inv.PaymentRequest)
	fmt.Println()
	if flagCopy {
		if err := clipboard.WriteAll(inv.PaymentRequest); err != nil {
			fmt.Println(cli.RenderWarning("could not copy invoice: " + err.Error()))
		} else {
			fmt.Println("  Invoice copied to clipboard.")
		}
	}

	h, err := d.payment.AwaitPayment(ctx)
	if err != nil {
		return err
	}
	fmt.Println("  Waiting for payment... (Ctrl+C to cancel)")
	res := h.Wait(ctx)

	switch res.Outcome {
	case payment.Settled:
	case payment.Cancelled:
		return errors.New("cancelled before payment")
	default:
		return d.payment.State().Err
	}

	if err := d.chat.ConfigureLimit(ctx, limit); err != nil {
		return fmt.Errorf("payment received but the session could not be opened: %w", err)
	}
	d.payment.ResetPayment()

	fmt.Println("  Paid. Session open.")
	fmt.Println()
	printSession(d)
	return nil
}

func runNode(_ *cobra.Command, _ []string) error {
	d, err := openDeps(false)
	if err != nil {
		return err
	}
	defer d.Close()

	info, err := d.provider.NodeInfo(context.Background())
	if err != nil {
		return err
	}
	network := "mainnet"
	if info.Testnet {
		network = "testnet"
	}
	mock := ""
	if info.Alias == lnd.MockNodeAlias {
		mock = "  (mock)"
	}

	fmt.Println()
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Alias", Value: info.Alias + mock},
		{Key: "Pubkey", Value: info.IdentityPubkey},
		{Key: "Network", Value: network},
		{Key: "Channels", Value: cli.FormatNumber(int64(info.NumActiveChannels))},
		{Key: "Peers", Value: cli.FormatNumber(int64(info.NumPeers))},
		{Key: "Block height", Value: cli.FormatNumber(info.BlockHeight)},
		{Key: "Synced", Value: fmt.Sprint(info.SyncedToChain)},
	}))
	fmt.Println()
	return nil
}
